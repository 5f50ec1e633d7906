package domain

import "math/big"

// Digest is a 32-byte identifier in canonical form: "0x" followed by 64 lower-case hex chars.
type Digest string

// String returns the digest text.
func (d Digest) String() string {
	return string(d)
}

// Absent reports whether the digest carries no value.
func (d Digest) Absent() bool {
	return d == ""
}

// DecodedEvent is a contract event decoded from a receipt log.
// Args values are Digest, address strings in display form, *big.Int, bool, or string.
type DecodedEvent struct {
	Name     string         `json:"name"`
	Contract string         `json:"contract"`
	LogIndex int            `json:"log_index"`
	Args     map[string]any `json:"args"`
}

// Digest returns a digest-typed argument, or "" when absent.
func (e *DecodedEvent) Digest(name string) Digest {
	switch v := e.Args[name].(type) {
	case Digest:
		return v
	case string:
		return Digest(v)
	}
	return ""
}

// Address returns an address-typed argument, or "" when absent.
func (e *DecodedEvent) Address(name string) string {
	s, _ := e.Args[name].(string)
	return s
}

// Uint returns an integer argument.
func (e *DecodedEvent) Uint(name string) (*big.Int, bool) {
	v, ok := e.Args[name].(*big.Int)
	return v, ok
}
