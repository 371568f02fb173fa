package tsig

import (
	"bytes"
	"crypto/hmac"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/miekg/dns"
)

// MaxUpdatesWithoutTSIG is the hard cap on consecutive AXFR response
// packets that may omit a TSIG record before a digest window has been
// closed again. The client aborts the transfer once this is exceeded.
const MaxUpdatesWithoutTSIG = 100

// Status is the verification state of a Record, mirroring the three-way
// result a caller needs after FindRR/Verify.
type Status int

const (
	StatusOK Status = iota
	StatusNotPresent
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotPresent:
		return "NOT_PRESENT"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrVerifyFailed is returned by Verify when the computed MAC does not
// match the MAC carried in the response's TSIG record.
var ErrVerifyFailed = errors.New("tsig: MAC verification failed")

// Variables are the RFC 2845 "TSIG Variables" fields hashed alongside the
// DNS message bytes, taken either from the RR about to be written (signing)
// or the RR as received (verifying).
type Variables struct {
	Name       string
	Algorithm  string
	TimeSigned uint64
	Fudge      uint16
	Error      uint16
	OtherData  []byte
}

// Record is the mutable per-transfer TSIG state machine described in spec
// section 4.1: it accumulates a rolling HMAC digest across one or more DNS
// response packets and signs or verifies at each digest-window boundary.
type Record struct {
	Key       *Key
	Algorithm string
	QueryID   uint16

	Status                  Status
	ErrorCode               uint16
	ResponseCount           int
	UpdatesSinceLastPrepare int
	Position                int

	h           hash.Hash
	havePrevMAC bool
	prevMAC     []byte
	mac         []byte
	receivedMAC []byte
}

// InitRecord binds the algorithm and key this record will sign/verify with.
func (r *Record) InitRecord(algorithm string, key *Key) error {
	if !KnownAlgorithm(algorithm) {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	r.Algorithm = algorithm
	r.Key = key
	return nil
}

// InitQuery resets counters and begins a fresh transfer bound to queryID.
func (r *Record) InitQuery(queryID uint16) {
	r.QueryID = queryID
	r.Status = StatusOK
	r.ErrorCode = dns.RcodeSuccess
	r.ResponseCount = 0
	r.UpdatesSinceLastPrepare = 0
	r.Position = 0
	r.havePrevMAC = false
	r.prevMAC = nil
	r.mac = nil
	r.receivedMAC = nil
	r.h = nil
}

// Prepare opens a new digest window. Every window after the first is seeded
// with the previous signature, length-prefixed, per RFC 2845's rule for
// multi-packet responses.
func (r *Record) Prepare() error {
	h, err := newHash(r.Algorithm, r.Key.Secret)
	if err != nil {
		return err
	}
	r.h = h
	if r.havePrevMAC {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(r.prevMAC)))
		r.h.Write(lenBuf[:])
		r.h.Write(r.prevMAC)
	}
	r.UpdatesSinceLastPrepare = 0
	return nil
}

// Update feeds buf into the current digest window. Called once per packet
// (or packet prefix) within the window.
func (r *Record) Update(buf []byte) {
	r.h.Write(buf)
	r.UpdatesSinceLastPrepare++
}

// Sign finalizes the current window as the signer, producing the MAC that
// AppendRR will embed and that the next Prepare will chain from.
func (r *Record) Sign(v Variables) ([]byte, error) {
	if err := r.writeVariables(v); err != nil {
		return nil, err
	}
	mac := r.h.Sum(nil)
	r.h = nil
	r.mac = mac
	r.prevMAC = mac
	r.havePrevMAC = true
	return mac, nil
}

// Verify finalizes the current window as the verifier and constant-time
// compares the result against the MAC most recently extracted by FindRR.
func (r *Record) Verify(v Variables) error {
	if err := r.writeVariables(v); err != nil {
		return err
	}
	computed := r.h.Sum(nil)
	r.h = nil
	if !hmac.Equal(computed, r.receivedMAC) {
		r.Status = StatusError
		return ErrVerifyFailed
	}
	r.Status = StatusOK
	r.prevMAC = r.receivedMAC
	r.havePrevMAC = true
	r.ResponseCount++
	return nil
}

func (r *Record) writeVariables(v Variables) error {
	nameWire, err := packName(v.Name)
	if err != nil {
		return fmt.Errorf("tsig: packing key name: %w", err)
	}
	algWire, err := packName(v.Algorithm)
	if err != nil {
		return fmt.Errorf("tsig: packing algorithm name: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(nameWire)
	binary.Write(&buf, binary.BigEndian, uint16(dns.ClassANY))
	binary.Write(&buf, binary.BigEndian, uint32(0)) // TTL is always 0
	buf.Write(algWire)

	var timeBuf [6]byte
	putUint48(timeBuf[:], v.TimeSigned)
	buf.Write(timeBuf[:])

	binary.Write(&buf, binary.BigEndian, v.Fudge)
	binary.Write(&buf, binary.BigEndian, v.Error)
	binary.Write(&buf, binary.BigEndian, uint16(len(v.OtherData)))
	buf.Write(v.OtherData)

	r.h.Write(buf.Bytes())
	return nil
}

// AppendRR appends the signed TSIG record to msg's additional section,
// using the MAC most recently produced by Sign.
func (r *Record) AppendRR(msg *dns.Msg, v Variables) {
	rr := &dns.TSIG{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(v.Name),
			Rrtype: dns.TypeTSIG,
			Class:  dns.ClassANY,
			Ttl:    0,
		},
		Algorithm:  dns.Fqdn(v.Algorithm),
		TimeSigned: v.TimeSigned,
		Fudge:      v.Fudge,
		MACSize:    uint16(len(r.mac)),
		MAC:        hex.EncodeToString(r.mac),
		OrigId:     r.QueryID,
		Error:      v.Error,
		OtherLen:   uint16(len(v.OtherData)),
		OtherData:  hex.EncodeToString(v.OtherData),
	}
	msg.Extra = append(msg.Extra, rr)
}

// PacketInfo carries what FindRR needs to locate an in-band TSIG record: the
// raw wire bytes of the response and its already-parsed additional section.
type PacketInfo struct {
	Raw        []byte
	Question   int
	Answer     int
	NS         int
	Additional []dns.RR
}

// FindRR scans the packet's additional section for a trailing TSIG record.
// If present, it populates Position, ErrorCode and the received MAC, returns
// the received variables, and decrements ARCOUNT in pi.Raw in place so that
// pi.Raw[:Position] is the message as it was before the TSIG RR was added;
// if absent, it sets Status = NOT_PRESENT and leaves Position at 0.
func (r *Record) FindRR(pi PacketInfo) (Variables, error) {
	if len(pi.Additional) == 0 {
		r.Status = StatusNotPresent
		r.Position = 0
		return Variables{}, nil
	}
	last := pi.Additional[len(pi.Additional)-1]
	t, ok := last.(*dns.TSIG)
	if !ok {
		r.Status = StatusNotPresent
		r.Position = 0
		return Variables{}, nil
	}

	pos, err := locateLastAdditionalRR(pi.Raw, pi.Question, pi.Answer, pi.NS, len(pi.Additional))
	if err != nil {
		r.Status = StatusError
		return Variables{}, fmt.Errorf("tsig: locating TSIG record: %w", err)
	}

	mac, err := hex.DecodeString(t.MAC)
	if err != nil {
		r.Status = StatusError
		return Variables{}, fmt.Errorf("tsig: decoding MAC: %w", err)
	}
	other, err := hex.DecodeString(t.OtherData)
	if err != nil {
		r.Status = StatusError
		return Variables{}, fmt.Errorf("tsig: decoding other-data: %w", err)
	}

	arcount := binary.BigEndian.Uint16(pi.Raw[10:12])
	binary.BigEndian.PutUint16(pi.Raw[10:12], arcount-1)

	r.Position = pos
	r.ErrorCode = t.Error
	r.receivedMAC = mac
	r.Status = StatusOK

	return Variables{
		Name:       t.Hdr.Name,
		Algorithm:  t.Algorithm,
		TimeSigned: t.TimeSigned,
		Fudge:      t.Fudge,
		Error:      t.Error,
		OtherData:  other,
	}, nil
}
