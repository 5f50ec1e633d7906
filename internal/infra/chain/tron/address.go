package tron

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the version byte of mainnet and testnet accounts.
const AddressPrefix byte = 0x41

// FormatAddress renders a 20-byte account as a base58check "T..." address.
func FormatAddress(addr common.Address) string {
	return base58.CheckEncode(addr.Bytes(), AddressPrefix)
}

// ParseAddress accepts a base58check address, a 21-byte hex address with the 41
// prefix, or a bare 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, fmt.Errorf("empty address")
	}

	if strings.HasPrefix(s, "T") {
		payload, version, err := base58.CheckDecode(s)
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid base58 address %q: %w", s, err)
		}
		if version != AddressPrefix || len(payload) != common.AddressLength {
			return common.Address{}, fmt.Errorf("invalid address %q", s)
		}
		return common.BytesToAddress(payload), nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	switch {
	case len(raw) == common.AddressLength+1 && raw[0] == AddressPrefix:
		return common.BytesToAddress(raw[1:]), nil
	case len(raw) == common.AddressLength:
		return common.BytesToAddress(raw), nil
	}
	return common.Address{}, fmt.Errorf("invalid address length %q", s)
}
