// Package tsig implements the transaction-signature state machine used to
// authenticate AXFR requests and responses (RFC 2845).
package tsig

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/miekg/dns"
)

// hashCtor returns a fresh, keyed HMAC hash.Hash for the given algorithm.
type hashCtor func(secret []byte) hash.Hash

var algorithms = map[string]hashCtor{
	dns.HmacMD5:    func(s []byte) hash.Hash { return hmac.New(md5.New, s) },
	dns.HmacSHA1:   func(s []byte) hash.Hash { return hmac.New(sha1.New, s) },
	dns.HmacSHA256: func(s []byte) hash.Hash { return hmac.New(sha256.New, s) },
	dns.HmacSHA384: func(s []byte) hash.Hash { return hmac.New(sha512.New384, s) },
	dns.HmacSHA512: func(s []byte) hash.Hash { return hmac.New(sha512.New, s) },
}

// ErrUnknownAlgorithm is returned when a TSIG key names an HMAC algorithm
// this engine does not implement.
var ErrUnknownAlgorithm = fmt.Errorf("tsig: unknown algorithm")

func newHash(algorithm string, secret []byte) (hash.Hash, error) {
	ctor, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	return ctor(secret), nil
}

// KnownAlgorithm reports whether algorithm names an HMAC primitive this
// engine can sign and verify with.
func KnownAlgorithm(algorithm string) bool {
	_, ok := algorithms[algorithm]
	return ok
}
