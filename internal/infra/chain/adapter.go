package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Ledger is the read-only view of a ledger node used for payment confirmation.
type Ledger interface {
	// GetTransactionReceipt returns the execution receipt for txID, or (nil, nil)
	// when the node has not indexed the transaction yet.
	GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error)

	// ReadTokenDecimals calls decimals() on a token contract.
	ReadTokenDecimals(ctx context.Context, token string) (int32, error)

	// GetLatestBlock returns the latest block number on the chain
	GetLatestBlock(ctx context.Context) (uint64, error)

	// NormalizeTxID returns the canonical spelling of a transaction id,
	// the form stored when an order is bound
	NormalizeTxID(txID string) string

	// Network returns the network label used in logs and metrics
	Network() string
}

// AddressCodec converts between 20-byte accounts and the ledger's display form.
type AddressCodec interface {
	FormatAddress(addr common.Address) string
	ParseAddress(display string) (common.Address, error)
}

// Adapter is a Ledger that also knows its address display form.
type Adapter interface {
	Ledger
	AddressCodec
}
