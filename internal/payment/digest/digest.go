// Package digest canonicalizes application identifiers into the 32-byte digest form
// used by the payment contracts.
//
// Two derivations exist and must not be mixed up:
//   - FromString hashes arbitrary input (merchant names, random seeds) with keccak256,
//     unless the input already is a digest.
//   - FromStoredID right-pads or truncates the raw bytes of a stored identifier to 32 bytes,
//     the convention the contracts use when a short bytes field doubles as an identifier.
package digest

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Size is the digest length in bytes.
const Size = 32

// IsDigest reports whether s is a 0x-prefixed 32-byte hex value (any case).
func IsDigest(s string) bool {
	if len(s) != 2+2*Size || !has0xPrefix(s) {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// FromString returns input lower-cased when it already is a digest,
// otherwise keccak256 of its UTF-8 bytes.
func FromString(input string) (domain.Digest, error) {
	if input == "" {
		return "", domain.NewError(domain.KindInvalidInput, "input required", nil)
	}
	if IsDigest(input) {
		return domain.Digest(strings.ToLower(input)), nil
	}
	return domain.Digest(crypto.Keccak256Hash([]byte(input)).Hex()), nil
}

// FromStoredID returns the padded 32-byte form of a stored identifier.
// A 0x-prefixed hex identifier contributes its decoded bytes; anything else its UTF-8 bytes.
// Values longer than 32 bytes are truncated.
func FromStoredID(storedID string) (domain.Digest, error) {
	if storedID == "" {
		return "", domain.NewError(domain.KindInvalidInput, "stored id required", nil)
	}

	raw := []byte(storedID)
	if has0xPrefix(storedID) && len(storedID) > 2 {
		if b, err := hex.DecodeString(storedID[2:]); err == nil {
			raw = b
		}
	}

	var out [Size]byte
	copy(out[:], raw)
	return domain.Digest(hexutil.Encode(out[:])), nil
}

// Normalize lower-cases v and gives it exactly one 0x prefix.
// Empty input yields the absent digest.
func Normalize(v string) domain.Digest {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	v = strings.ToLower(v)
	return domain.Digest("0x" + strings.TrimPrefix(v, "0x"))
}

// MustFromString is FromString for constant inputs; it panics on empty input.
func MustFromString(input string) domain.Digest {
	d, err := FromString(input)
	if err != nil {
		panic(err)
	}
	return d
}

// FromHash converts a 32-byte word (a log topic, a decoded bytes32) to a digest.
func FromHash(h common.Hash) domain.Digest {
	return domain.Digest(hexutil.Encode(h.Bytes()))
}

// Equal compares two digest values regardless of case and prefix.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// NewRandom derives a fresh identifier from a random seed that never leaves the process.
func NewRandom() (domain.Digest, error) {
	seed, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return FromString(strings.ReplaceAll(seed.String(), "-", ""))
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
