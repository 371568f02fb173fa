package tsig

// Key is a TSIG key as looked up by name: its HMAC algorithm, its secret,
// and the address of the server it is used to authenticate (spec "TSIG
// key" data model). The key table built from these is process-global and
// immutable after startup; see keystore for how it is loaded.
type Key struct {
	Name      string
	Algorithm string
	Secret    []byte
	Server    string
}
