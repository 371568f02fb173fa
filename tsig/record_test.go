package tsig

import (
	"testing"
	"time"

	"github.com/miekg/dns"
)

func testKey() *Key {
	return &Key{
		Name:      "transfer-key.",
		Algorithm: dns.HmacSHA256,
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
	}
}

// signQuery signs a freshly built SOA query the way axfr.Client would,
// returning the fully packed query bytes and the Record left in a state
// ready to verify the first response.
func signQuery(t *testing.T, key *Key) ([]byte, *Record) {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion("zone.example.", dns.TypeSOA)
	m.Id = 4242

	unsigned, err := m.Pack()
	if err != nil {
		t.Fatalf("pack query: %v", err)
	}

	rec := &Record{}
	if err := rec.InitRecord(key.Algorithm, key); err != nil {
		t.Fatalf("InitRecord: %v", err)
	}
	rec.InitQuery(m.Id)
	if err := rec.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	rec.Update(unsigned)

	v := Variables{Name: key.Name, Algorithm: key.Algorithm, TimeSigned: uint64(time.Now().Unix()), Fudge: 300}
	if _, err := rec.Sign(v); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	rec.AppendRR(m, v)

	signed, err := m.Pack()
	if err != nil {
		t.Fatalf("pack signed query: %v", err)
	}
	return signed, rec
}

// signResponse builds a one-packet SOA response, signs it as the "server"
// using a fresh Record chained from the query's MAC, and returns the wire
// bytes plus the variables it signed with.
func signResponse(t *testing.T, key *Key, queryRec *Record, qid uint16, tamper bool) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.Id = qid
	m.Response = true
	m.Question = []dns.Question{{Name: "zone.example.", Qtype: dns.TypeSOA, Qclass: dns.ClassINET}}
	soa, err := dns.NewRR("zone.example. 3600 IN SOA ns.zone.example. hostmaster.zone.example. 7 7200 3600 1209600 3600")
	if err != nil {
		t.Fatalf("NewRR: %v", err)
	}
	m.Answer = []dns.RR{soa}

	unsigned, err := m.Pack()
	if err != nil {
		t.Fatalf("pack response: %v", err)
	}
	if tamper {
		unsigned[len(unsigned)-1] ^= 0xFF
	}

	server := &Record{}
	if err := server.InitRecord(key.Algorithm, key); err != nil {
		t.Fatalf("InitRecord: %v", err)
	}
	server.QueryID = qid
	server.havePrevMAC = queryRec.havePrevMAC
	server.prevMAC = queryRec.prevMAC
	if err := server.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	server.Update(unsigned)

	v := Variables{Name: key.Name, Algorithm: key.Algorithm, TimeSigned: uint64(time.Now().Unix()), Fudge: 300}
	if _, err := server.Sign(v); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	server.AppendRR(m, v)

	signed, err := m.Pack()
	if err != nil {
		t.Fatalf("pack signed response: %v", err)
	}
	return signed
}

func verifyPacket(t *testing.T, client *Record, raw []byte) error {
	t.Helper()
	parsed := new(dns.Msg)
	if err := parsed.Unpack(raw); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	v, err := client.FindRR(PacketInfo{
		Raw:        raw,
		Question:   len(parsed.Question),
		Answer:     len(parsed.Answer),
		NS:         len(parsed.Ns),
		Additional: parsed.Extra,
	})
	if err != nil {
		return err
	}
	if client.Status != StatusOK {
		t.Fatalf("expected TSIG present, got status %s", client.Status)
	}
	if err := client.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	client.Update(raw[:client.Position])
	return client.Verify(v)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey()
	signedQuery, queryRec := signQuery(t, key)

	parsedQuery := new(dns.Msg)
	if err := parsedQuery.Unpack(signedQuery); err != nil {
		t.Fatalf("Unpack query: %v", err)
	}

	response := signResponse(t, key, queryRec, parsedQuery.Id, false)

	if err := verifyPacket(t, queryRec, response); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if queryRec.Status != StatusOK {
		t.Fatalf("expected status OK, got %s", queryRec.Status)
	}
	if queryRec.ResponseCount != 1 {
		t.Fatalf("expected response_count 1, got %d", queryRec.ResponseCount)
	}
}

func TestTamperedMessageFailsVerify(t *testing.T) {
	key := testKey()
	signedQuery, queryRec := signQuery(t, key)

	parsedQuery := new(dns.Msg)
	if err := parsedQuery.Unpack(signedQuery); err != nil {
		t.Fatalf("Unpack query: %v", err)
	}

	response := signResponse(t, key, queryRec, parsedQuery.Id, true)

	err := verifyPacket(t, queryRec, response)
	if err == nil {
		t.Fatalf("expected verify failure on tampered message")
	}
	if queryRec.Status != StatusError {
		t.Fatalf("expected status ERROR, got %s", queryRec.Status)
	}
}

func TestRollingDigestAcrossUntaggedPackets(t *testing.T) {
	key := testKey()
	_, queryRec := signQuery(t, key)

	// Simulate k untagged packets (no TSIG, just opaque bytes) followed by a
	// tagged one; server and client must agree on the final MAC regardless
	// of k, up to the 100-packet cap (spec section 4.1).
	for _, k := range []int{1, 50, 100} {
		server := &Record{}
		if err := server.InitRecord(key.Algorithm, key); err != nil {
			t.Fatalf("InitRecord: %v", err)
		}
		server.havePrevMAC = queryRec.havePrevMAC
		server.prevMAC = queryRec.prevMAC
		if err := server.Prepare(); err != nil {
			t.Fatalf("Prepare: %v", err)
		}

		client := &Record{}
		if err := client.InitRecord(key.Algorithm, key); err != nil {
			t.Fatalf("InitRecord: %v", err)
		}
		client.havePrevMAC = queryRec.havePrevMAC
		client.prevMAC = queryRec.prevMAC
		if err := client.Prepare(); err != nil {
			t.Fatalf("Prepare: %v", err)
		}

		for i := 0; i < k; i++ {
			packet := []byte{byte(i), byte(i >> 8), 0xAA, 0xBB}
			server.Update(packet)
			client.Update(packet)
		}
		if client.UpdatesSinceLastPrepare > MaxUpdatesWithoutTSIG {
			t.Fatalf("k=%d exceeds the hard limit unexpectedly", k)
		}

		final := []byte{0x01, 0x02, 0x03}
		server.Update(final)
		client.Update(final)

		v := Variables{Name: key.Name, Algorithm: key.Algorithm, TimeSigned: 1000, Fudge: 300}
		mac, err := server.Sign(v)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		client.receivedMAC = mac
		if err := client.Verify(v); err != nil {
			t.Fatalf("k=%d: Verify failed: %v", k, err)
		}
	}
}

// TestRollingDigestCapFiresAt101 is the companion to
// TestRollingDigestAcrossUntaggedPackets: spec.md section 8's testable
// property requires k=100 to still be tolerated but k=101 to trip the cap,
// which axfr.Client enforces by checking UpdatesSinceLastPrepare against
// MaxUpdatesWithoutTSIG after each untagged packet.
func TestRollingDigestCapFiresAt101(t *testing.T) {
	key := testKey()
	_, queryRec := signQuery(t, key)

	client := &Record{}
	if err := client.InitRecord(key.Algorithm, key); err != nil {
		t.Fatalf("InitRecord: %v", err)
	}
	client.havePrevMAC = queryRec.havePrevMAC
	client.prevMAC = queryRec.prevMAC
	if err := client.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	const k = 101
	for i := 0; i < k; i++ {
		packet := []byte{byte(i), byte(i >> 8), 0xAA, 0xBB}
		client.Update(packet)
	}
	if client.UpdatesSinceLastPrepare <= MaxUpdatesWithoutTSIG {
		t.Fatalf("k=%d: UpdatesSinceLastPrepare=%d, want > %d (cap should have fired)", k, client.UpdatesSinceLastPrepare, MaxUpdatesWithoutTSIG)
	}
}

func TestInitRecordRejectsUnknownAlgorithm(t *testing.T) {
	rec := &Record{}
	err := rec.InitRecord("hmac-unobtainium.", &Key{Secret: []byte("x")})
	if err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}
