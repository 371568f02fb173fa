package tsig

import (
	"fmt"

	"github.com/miekg/dns"
)

// packName wire-encodes name (uncompressed) the way RFC 2845's TSIG
// variables require. It reuses dns.Msg's own name packer via a throwaway
// single-question message rather than re-implementing label encoding.
func packName(name string) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	buf, err := m.Pack()
	if err != nil {
		return nil, err
	}
	if len(buf) < 16 {
		return nil, fmt.Errorf("tsig: packed name too short")
	}
	// 12-byte header, then QNAME, then QTYPE(2)+QCLASS(2).
	return buf[12 : len(buf)-4], nil
}

func putUint48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

// locateLastAdditionalRR returns the byte offset within raw at which the
// last resource record of the additional section begins, by replaying the
// wire parse: skip the header, skip qdcount questions, then skip
// ancount+nscount+(additional-1) RRs.
func locateLastAdditionalRR(raw []byte, qdcount, ancount, nscount, arcount int) (int, error) {
	if arcount == 0 {
		return 0, fmt.Errorf("tsig: no additional records to locate")
	}
	off := 12
	for i := 0; i < qdcount; i++ {
		_, noff, err := dns.UnpackDomainName(raw, off)
		if err != nil {
			return 0, fmt.Errorf("tsig: skipping question %d: %w", i, err)
		}
		off = noff + 4 // QTYPE + QCLASS
	}

	toSkip := ancount + nscount + arcount - 1
	for i := 0; i < toSkip; i++ {
		start := off
		_, noff, err := dns.UnpackRR(raw, off)
		if err != nil {
			return 0, fmt.Errorf("tsig: skipping record %d: %w", i, err)
		}
		if noff <= start {
			return 0, fmt.Errorf("tsig: record %d did not advance", i)
		}
		off = noff
	}
	return off, nil
}
