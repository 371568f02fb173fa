package zone

import (
	"fmt"
	"time"

	"github.com/dnsxfer/xfercore/axfr"
	"github.com/dnsxfer/xfercore/tsig"
	"github.com/miekg/dns"
)

// ExitStatus mirrors original_source/nsd-xfer.c's XFER_* exit codes,
// reused here as the TransferDriver's return value instead of a process
// exit (spec.md section 6, "Exit codes (driver level)").
type ExitStatus int

const (
	ExitUpToDate ExitStatus = iota
	ExitSuccess
	ExitFail
)

func (s ExitStatus) String() string {
	switch s {
	case ExitUpToDate:
		return "UP_TO_DATE"
	case ExitSuccess:
		return "SUCCESS"
	default:
		return "FAIL"
	}
}

// Master is one candidate source server for a zone, paired with the TSIG
// key (if any) used to authenticate transfers from it.
type Master struct {
	Address string // host:port
	Network string // "tcp", "tcp4", or "tcp6"; "" means either family
	Key     *tsig.Key
}

// TransferDriver drives check-serial-then-axfr against an ordered list of
// masters for one zone, falling through to the next master on failure —
// nsd-xfer.c's main loops over argv server names the same way.
type TransferDriver struct {
	Zone        *ZoneData
	Masters     []Master
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Run tries each master in order and returns on the first one that either
// reports the zone up to date or completes a transfer. It only falls
// through to the next master on a protocol/network failure; an UpToDate
// or successful transfer from any master ends the loop immediately. The
// returned Master is whichever one actually produced that result — a
// caller reporting TSIG status must use its key, not the first
// configured master's, since a fallback may have succeeded instead.
func (d *TransferDriver) Run() (ExitStatus, Master, error) {
	var lastErr error
	for _, m := range d.Masters {
		status, err := d.attempt(m)
		if err == nil {
			return status, m, nil
		}
		lastErr = err
		d.Zone.Logger.Printf("zone %s: transfer from %s failed: %v", d.Zone.Name, m.Address, err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("zone: no masters configured")
	}
	return ExitFail, Master{}, lastErr
}

func (d *TransferDriver) attempt(m Master) (ExitStatus, error) {
	firstTransfer := d.Zone.Serial == 0 && d.Zone.Store.Len() == 0
	state := axfr.State{
		Zone:          d.Zone.Name,
		Master:        m.Address,
		Network:       m.Network,
		LastSerial:    d.Zone.Serial,
		FirstTransfer: firstTransfer,
		Key:           m.Key,
		DialTimeout:   d.DialTimeout,
		IOTimeout:     d.IOTimeout,
	}
	client := axfr.NewClient(state)

	result, serial, err := client.CheckSerial()
	if err != nil {
		return ExitFail, err
	}
	if result == axfr.UpToDate {
		return ExitUpToDate, nil
	}

	d.Zone.BeginTransfer()
	// The stream's leading SOA carries the serial actually transferred; a
	// first transfer skips the probe, so CheckSerial reported 0 for it.
	sawSOA := false
	stats, err := client.Axfr(func(rr dns.RR) error {
		if soa, ok := rr.(*dns.SOA); ok && !sawSOA {
			serial = soa.Serial
			sawSOA = true
		}
		return d.Zone.Stage(rr)
	})
	if err != nil {
		return ExitFail, err
	}
	if err := d.Zone.Commit(serial); err != nil {
		return ExitFail, err
	}
	d.Zone.Upstream = m.Address
	d.Zone.WasFirstTransfer = firstTransfer

	d.Zone.Logger.Printf("zone %s: transferred serial %d from %s (%d records, %d messages, %d bytes)",
		d.Zone.Name, serial, m.Address, stats.Records, stats.Messages, stats.Bytes)
	return ExitSuccess, nil
}
