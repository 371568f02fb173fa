package axfr

import (
	"fmt"
	"net"
	"time"

	"github.com/dnsxfer/xfercore/tsig"
	"github.com/miekg/dns"
)

// CheckResult is the outcome of a SOA freshness probe (spec.md section
// 4.2's check_serial).
type CheckResult int

const (
	UpToDate CheckResult = iota
	Newer
)

func (r CheckResult) String() string {
	if r == UpToDate {
		return "UP_TO_DATE"
	}
	return "NEWER"
}

// State is everything a single check_serial/axfr run needs: which zone,
// which master, the last serial seen, and the TSIG key to sign with (nil
// for an unsigned transfer).
type State struct {
	Zone          string
	Master        string // host:port
	Network       string // "tcp", "tcp4", or "tcp6"; "" means "tcp" (either family)
	LastSerial    uint32
	FirstTransfer bool
	Key           *tsig.Key
	DialTimeout   time.Duration
	IOTimeout     time.Duration
}

// Stats accumulates the counters original_source/nsd-xfer.c's print_stats
// reports at the end of a transfer.
type Stats struct {
	Messages int
	Records  int
	Bytes    int
}

// Client drives one check_serial/axfr exchange against State.Master.
type Client struct {
	State State
}

func NewClient(state State) *Client {
	return &Client{State: state}
}

func (c *Client) dial() (net.Conn, error) {
	network := c.State.Network
	if network == "" {
		network = "tcp"
	}
	d := net.Dialer{Timeout: c.State.DialTimeout}
	conn, err := d.Dial(network, c.State.Master)
	if err != nil {
		return nil, fmt.Errorf("axfr: dial %s: %w", c.State.Master, err)
	}
	return conn, nil
}

func (c *Client) newRecord() (*tsig.Record, error) {
	if c.State.Key == nil {
		return nil, nil
	}
	rec := &tsig.Record{}
	if err := rec.InitRecord(c.State.Key.Algorithm, c.State.Key); err != nil {
		return nil, err
	}
	return rec, nil
}

// buildQuery packs m, signs it with rec if non-nil (opening and closing the
// query's own digest window), and returns the wire bytes ready to frame.
func (c *Client) buildQuery(m *dns.Msg, rec *tsig.Record) ([]byte, error) {
	unsigned, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("axfr: packing query: %w", err)
	}
	if rec == nil {
		return unsigned, nil
	}
	rec.InitQuery(m.Id)
	if err := rec.Prepare(); err != nil {
		return nil, err
	}
	rec.Update(unsigned)
	v := tsig.Variables{
		Name:       rec.Key.Name,
		Algorithm:  rec.Algorithm,
		TimeSigned: uint64(time.Now().Unix()),
		Fudge:      300,
	}
	if _, err := rec.Sign(v); err != nil {
		return nil, fmt.Errorf("axfr: signing query: %w", err)
	}
	rec.AppendRR(m, v)
	return m.Pack()
}

// verifyResponse feeds one response packet into rec's digest window,
// closing and reopening the window when a TSIG record is present and
// enforcing the 100-untagged-packet cap when it is not (spec.md section
// 4.1).
func (c *Client) verifyResponse(rec *tsig.Record, raw []byte, parsed *dns.Msg) error {
	v, err := rec.FindRR(tsig.PacketInfo{
		Raw:        raw,
		Question:   len(parsed.Question),
		Answer:     len(parsed.Answer),
		NS:         len(parsed.Ns),
		Additional: parsed.Extra,
	})
	if err != nil {
		return fmt.Errorf("axfr: locating TSIG record: %w", err)
	}

	switch rec.Status {
	case tsig.StatusOK:
		rec.Update(raw[:rec.Position])
		if err := rec.Verify(v); err != nil {
			return fmt.Errorf("axfr: %w", err)
		}
		return rec.Prepare()
	case tsig.StatusNotPresent:
		if rec.ResponseCount == 0 {
			return fmt.Errorf("axfr: required TSIG not present on first response")
		}
		rec.Update(raw)
		if rec.UpdatesSinceLastPrepare > tsig.MaxUpdatesWithoutTSIG {
			return fmt.Errorf("axfr: exceeded %d packets without a TSIG record", tsig.MaxUpdatesWithoutTSIG)
		}
		return nil
	default:
		return fmt.Errorf("axfr: malformed TSIG record in response")
	}
}

// CheckSerial issues a SOA query and reports whether the master's serial is
// newer than State.LastSerial. FirstTransfer always reports Newer without
// contacting the master.
func (c *Client) CheckSerial() (CheckResult, uint32, error) {
	if c.State.FirstTransfer {
		return Newer, 0, nil
	}

	conn, err := c.dial()
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	owner := dns.Fqdn(c.State.Zone)
	m := new(dns.Msg)
	m.SetQuestion(owner, dns.TypeSOA)
	m.Authoritative = true

	rec, err := c.newRecord()
	if err != nil {
		return 0, 0, err
	}
	raw, err := c.buildQuery(m, rec)
	if err != nil {
		return 0, 0, err
	}
	if err := writeMessage(conn, raw); err != nil {
		return 0, 0, fmt.Errorf("axfr: sending SOA query: %w", err)
	}

	if rec != nil {
		if err := rec.Prepare(); err != nil {
			return 0, 0, err
		}
	}

	resp, err := readMessage(conn, time.Now().Add(c.State.IOTimeout))
	if err != nil {
		return 0, 0, fmt.Errorf("axfr: reading SOA response: %w", err)
	}

	parsed := new(dns.Msg)
	if err := parsed.Unpack(resp); err != nil {
		return 0, 0, fmt.Errorf("axfr: unpacking SOA response: %w", err)
	}
	if err := validateResponse(resp, parsed, validateOpts{
		isSOAProbe: true,
		queryID:    m.Id,
		qname:      owner,
		qtype:      dns.TypeSOA,
		qclass:     dns.ClassINET,
	}); err != nil {
		return 0, 0, err
	}

	if rec != nil {
		if err := c.verifyResponse(rec, resp, parsed); err != nil {
			return 0, 0, err
		}
		if rec.Status != tsig.StatusOK {
			return 0, 0, fmt.Errorf("axfr: SOA response missing required TSIG")
		}
	}

	soa, ok := parsed.Answer[0].(*dns.SOA)
	if !ok {
		return 0, 0, fmt.Errorf("axfr: first answer RR is not SOA")
	}
	if serialNewer(soa.Serial, c.State.LastSerial) {
		return Newer, soa.Serial, nil
	}
	return UpToDate, soa.Serial, nil
}

// Axfr issues an AXFR query and drives the response loop until the
// terminating SOA is observed, delivering the leading SOA and every RR
// after it, but not the terminating SOA, to sink.
func (c *Client) Axfr(sink func(dns.RR) error) (Stats, error) {
	var stats Stats

	conn, err := c.dial()
	if err != nil {
		return stats, err
	}
	defer conn.Close()

	owner := dns.Fqdn(c.State.Zone)
	m := new(dns.Msg)
	m.SetQuestion(owner, dns.TypeAXFR)
	m.Authoritative = true

	rec, err := c.newRecord()
	if err != nil {
		return stats, err
	}
	raw, err := c.buildQuery(m, rec)
	if err != nil {
		return stats, err
	}
	if err := writeMessage(conn, raw); err != nil {
		return stats, fmt.Errorf("axfr: sending AXFR query: %w", err)
	}

	if rec != nil {
		if err := rec.Prepare(); err != nil {
			return stats, err
		}
	}

	sawFirstSOA := false
	for {
		resp, err := readMessage(conn, time.Now().Add(c.State.IOTimeout))
		if err != nil {
			return stats, fmt.Errorf("axfr: reading AXFR response: %w", err)
		}
		stats.Messages++
		stats.Bytes += len(resp)

		parsed := new(dns.Msg)
		if err := parsed.Unpack(resp); err != nil {
			return stats, fmt.Errorf("axfr: unpacking AXFR response: %w", err)
		}
		if err := validateResponse(resp, parsed, validateOpts{
			isSOAProbe: false,
			queryID:    m.Id,
			qname:      owner,
			qtype:      dns.TypeAXFR,
			qclass:     dns.ClassINET,
		}); err != nil {
			return stats, err
		}

		if rec != nil {
			if err := c.verifyResponse(rec, resp, parsed); err != nil {
				return stats, err
			}
		}

		for _, rr := range parsed.Answer {
			if !sawFirstSOA {
				if rr.Header().Rrtype != dns.TypeSOA || rr.Header().Name != owner || rr.Header().Class != dns.ClassINET {
					return stats, fmt.Errorf("axfr: answer section does not begin with a matching SOA")
				}
				sawFirstSOA = true
				if err := sink(rr); err != nil {
					return stats, fmt.Errorf("axfr: sink: %w", err)
				}
				stats.Records++
				continue
			}

			if rr.Header().Rrtype == dns.TypeSOA && rr.Header().Name == owner && rr.Header().Class == dns.ClassINET {
				if rec != nil && rec.Status != tsig.StatusOK {
					return stats, fmt.Errorf("axfr: final packet did not carry the required closing TSIG")
				}
				return stats, nil
			}

			if err := sink(rr); err != nil {
				return stats, fmt.Errorf("axfr: sink: %w", err)
			}
			stats.Records++
		}
	}
}
