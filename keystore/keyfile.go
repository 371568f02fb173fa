// Package keystore loads and persists TSIG keys: the one-shot key-file
// importer nsd-xfer(8) is handed on the command line, and the SQLite-backed
// table that makes the resulting key set process-global and immutable
// after startup (spec.md section 5).
package keystore

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/dnsxfer/xfercore/tsig"
	"github.com/miekg/dns"
)

// ReadKeyFile parses a TSIG key file: four newline-delimited lines, in
// order, server address, key name, algorithm tag, base64 secret
// (spec.md section 6, "TSIG key file"). The file is removed after a
// successful read — original_source/nsd-xfer.c's read_tsig_key does the
// same so the secret never lingers on disk past process start.
func ReadKeyFile(path string) (*tsig.Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: opening key file: %w", err)
	}

	lines, err := readFourLines(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	secret, err := base64.StdEncoding.DecodeString(lines[3])
	if err != nil {
		return nil, fmt.Errorf("keystore: decoding TSIG secret: %w", err)
	}

	key := &tsig.Key{
		Server:    lines[0],
		Name:      lines[1],
		Algorithm: algorithmTag(lines[2]),
		Secret:    secret,
	}

	if err := os.Remove(path); err != nil {
		return key, fmt.Errorf("keystore: key read but failed to remove %s: %w", path, err)
	}
	return key, nil
}

func readFourLines(f *os.File) ([4]string, error) {
	var out [4]string
	scanner := bufio.NewScanner(f)
	labels := [4]string{"server address", "key name", "algorithm", "secret"}
	for i := 0; i < 4; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return out, fmt.Errorf("keystore: reading TSIG key %s: %w", labels[i], err)
			}
			return out, fmt.Errorf("keystore: TSIG key file ended before %s", labels[i])
		}
		out[i] = strings.TrimSpace(scanner.Text())
	}
	return out, nil
}

// shortAlgorithmNames maps the short tags a TSIG key file carries to the
// full dns.HmacMD5-style algorithm names tsig.Record's HMAC table is
// keyed on.
var shortAlgorithmNames = map[string]string{
	"hmac-md5":    dns.HmacMD5,
	"hmac-sha1":   dns.HmacSHA1,
	"hmac-sha256": dns.HmacSHA256,
	"hmac-sha384": dns.HmacSHA384,
	"hmac-sha512": dns.HmacSHA512,
}

// algorithmTag normalizes the file's algorithm tag (e.g. "hmac-md5",
// "HMAC-SHA256.") to the dns.HmacMD5-style constant tsig.Record expects.
// A tag already spelled out in full form (trailing-dot FQDN) passes
// through unchanged.
func algorithmTag(tag string) string {
	short := strings.ToLower(strings.TrimSuffix(tag, "."))
	if full, ok := shortAlgorithmNames[short]; ok {
		return full
	}
	return tag
}
