// Package zone wires the TSIG engine, the AXFR client, and the radix trie
// together into one transferable zone: it stages incoming RRs during an
// in-flight transfer, commits them into a fresh trie, and writes the
// result out as a text zone file.
package zone

import (
	"fmt"
	"log"
	"sync"

	"github.com/dnsxfer/xfercore/radix"
	"github.com/miekg/dns"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// OwnerData is everything stored under one owner name: its RRs grouped by
// type, mirroring the teacher's tdns.OwnerData but dropping the RRSIG
// bookkeeping a signing-free core has no use for.
type OwnerData struct {
	Name    string
	RRtypes map[uint16][]dns.RR
}

// ZoneData is the in-memory representation of one zone: the radix-trie
// index that is the zone's committed state, plus the bookkeeping a
// transfer driver needs around it. Grounded on the teacher's ZoneData
// (tdns/structs.go), rewired from a ZoneStore/Owners/OwnerIndex trio onto
// a single radix.Tree, and from dns.Transfer onto axfr.Client.
type ZoneData struct {
	mu sync.Mutex

	Name             string
	Store            *radix.Tree
	Logger           *log.Logger
	Serial           uint32
	Upstream         string
	Dirty            bool
	WasFirstTransfer bool

	staging cmap.ConcurrentMap[string, *OwnerData]
}

// NewZoneData creates an empty zone named name (AXFR has not run yet, so
// Store starts as an empty trie and Serial is 0).
func NewZoneData(name string, logger *log.Logger) *ZoneData {
	if logger == nil {
		logger = log.Default()
	}
	return &ZoneData{
		Name:    dns.Fqdn(name),
		Store:   radix.New(0),
		Logger:  logger,
		staging: cmap.New[*OwnerData](),
	}
}

// BeginTransfer opens a fresh staging map, discarding anything left over
// from a previous aborted transfer (teacher: ZoneData.Data is similarly
// rebuilt per incoming AXFR envelope stream in ZoneTransferIn).
func (z *ZoneData) BeginTransfer() {
	z.staging = cmap.New[*OwnerData]()
}

// Stage records one RR parsed from an AXFR response into the staging map,
// grouped by owner and type. It is the axfr.Client sink during a transfer.
func (z *ZoneData) Stage(rr dns.RR) error {
	owner := dns.CanonicalName(rr.Header().Name)
	od, _ := z.staging.Get(owner)
	if od == nil {
		od = &OwnerData{Name: owner, RRtypes: map[uint16][]dns.RR{}}
		z.staging.Set(owner, od)
	}
	t := rr.Header().Rrtype
	od.RRtypes[t] = append(od.RRtypes[t], rr)
	return nil
}

// Commit builds a fresh radix trie from the staged owners and swaps it in
// atomically under serial. An AXFR response is always a full copy of the
// zone, so the previous trie is discarded wholesale rather than patched.
func (z *ZoneData) Commit(serial uint32) error {
	next := radix.New(0)
	var buildErr error
	z.staging.IterCb(func(owner string, od *OwnerData) {
		if buildErr != nil {
			return
		}
		key, err := ownerKey(owner)
		if err != nil {
			buildErr = fmt.Errorf("zone: packing owner %q: %w", owner, err)
			return
		}
		if _, err := next.Insert(key, od); err != nil {
			buildErr = fmt.Errorf("zone: inserting owner %q: %w", owner, err)
		}
	})
	if buildErr != nil {
		return buildErr
	}

	z.mu.Lock()
	z.Store = next
	z.Serial = serial
	z.Dirty = true
	z.mu.Unlock()
	return nil
}

// Lookup returns the OwnerData committed for name, if any.
func (z *ZoneData) Lookup(name string) (*OwnerData, bool) {
	key, err := ownerKey(name)
	if err != nil {
		return nil, false
	}
	z.mu.Lock()
	store := z.Store
	z.mu.Unlock()

	n, ok := store.Search(key)
	if !ok {
		return nil, false
	}
	od, ok := store.Elem(n).(*OwnerData)
	return od, ok
}

// ownerKey packs name into the lowercased wire-format byte string the
// radix trie keys on (spec.md section 3, "Owner name": canonical form is
// lowercase, names compare lexicographically on their wire octets).
func ownerKey(name string) ([]byte, error) {
	buf := make([]byte, 255)
	n, err := dns.PackDomainName(dns.CanonicalName(name), buf, 0, nil, false)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
