package domain

// ChainType selects the ledger adapter.
type ChainType string

const (
	ChainTypeTron ChainType = "tron"
	ChainTypeEVM  ChainType = "evm"
)

// Valid reports whether the chain type has an adapter.
func (t ChainType) Valid() bool {
	switch t {
	case ChainTypeTron, ChainTypeEVM:
		return true
	}
	return false
}
