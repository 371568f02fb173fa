package keystore

import (
	"path/filepath"
	"testing"

	"github.com/dnsxfer/xfercore/tsig"
)

func TestStorePutLookupAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	key := &tsig.Key{
		Name:      "transfer-key.",
		Algorithm: "hmac-sha256.",
		Secret:    []byte("supersecret"),
		Server:    "192.0.2.53",
	}
	if err := s.Put(key); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Lookup("transfer-key.")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil {
		t.Fatalf("Lookup returned nil, want a key")
	}
	if got.Algorithm != key.Algorithm || string(got.Secret) != string(key.Secret) || got.Server != key.Server {
		t.Fatalf("got %+v, want %+v", got, key)
	}

	if _, err := s.Lookup("no-such-key."); err != nil {
		t.Fatalf("Lookup of missing key: %v", err)
	}

	keys, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("All returned %d keys, want 1", len(keys))
	}
}

func TestStorePutReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	first := &tsig.Key{Name: "k.", Algorithm: "hmac-sha256.", Secret: []byte("one"), Server: "192.0.2.1"}
	second := &tsig.Key{Name: "k.", Algorithm: "hmac-sha256.", Secret: []byte("two"), Server: "192.0.2.2"}

	if err := s.Put(first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := s.Put(second); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	got, err := s.Lookup("k.")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(got.Secret) != "two" || got.Server != "192.0.2.2" {
		t.Fatalf("got %+v, want the replaced row", got)
	}

	keys, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("All returned %d rows, want 1 (upsert, not a second row)", len(keys))
	}
}
