package axfr

import (
	"fmt"

	"github.com/miekg/dns"
)

// headerSize is QHEADERSZ: the fixed 12-byte DNS message header.
const headerSize = 12

type validateOpts struct {
	isSOAProbe bool
	queryID    uint16
	qname      string
	qtype      uint16
	qclass     uint16
}

// validateResponse applies the numbered checks of spec.md section 4.2
// "Response validation" to one already-unpacked packet.
func validateResponse(raw []byte, msg *dns.Msg, opts validateOpts) error {
	if len(raw) <= headerSize {
		return fmt.Errorf("axfr: declared length %d does not exceed header size", len(raw))
	}
	if !msg.Response {
		return fmt.Errorf("axfr: QR bit not set in response")
	}
	if opts.isSOAProbe && msg.Truncated {
		return fmt.Errorf("axfr: SOA probe response is truncated")
	}
	if msg.Id != opts.queryID {
		return fmt.Errorf("axfr: response id %d does not match query id %d", msg.Id, opts.queryID)
	}
	if msg.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("axfr: response rcode %s", dns.RcodeToString[msg.Rcode])
	}

	if opts.isSOAProbe {
		if len(msg.Question) != 1 {
			return fmt.Errorf("axfr: SOA probe qdcount %d != 1", len(msg.Question))
		}
	} else if len(msg.Question) > 1 {
		return fmt.Errorf("axfr: AXFR response qdcount %d > 1", len(msg.Question))
	}
	if len(msg.Answer) < 1 {
		return fmt.Errorf("axfr: response ancount %d < 1", len(msg.Answer))
	}

	for _, q := range msg.Question {
		if q.Name != opts.qname || q.Qtype != opts.qtype || q.Qclass != opts.qclass {
			return fmt.Errorf("axfr: response question %v does not match request", q)
		}
	}
	return nil
}

// serialNewer reports whether a is strictly newer than b under RFC 1982
// serial number arithmetic, the comparison DNS SOA freshness checks use to
// tolerate 32-bit wraparound.
func serialNewer(a, b uint32) bool {
	return a != b && (a-b) < (1 << 31)
}
