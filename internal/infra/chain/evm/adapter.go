package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/paywatch/internal/core/domain"
)

const erc20DecimalsABI = `[{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}]`

var erc20ABI = mustParseABI(erc20DecimalsABI)

// Backend is the subset of ethclient.Client the adapter needs.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type EVMAdapter struct {
	network string
	backend Backend
	log     *slog.Logger
}

func NewEVMAdapter(network string, backend Backend) *EVMAdapter {
	return &EVMAdapter{
		network: network,
		backend: backend,
		log:     slog.Default().With("component", "evm", "network", network),
	}
}

func (a *EVMAdapter) Network() string {
	return a.network
}

// FormatAddress renders the EIP-55 checksummed form.
func (a *EVMAdapter) FormatAddress(addr common.Address) string {
	return addr.Hex()
}

func (a *EVMAdapter) ParseAddress(display string) (common.Address, error) {
	display = strings.TrimSpace(display)
	if !common.IsHexAddress(display) {
		return common.Address{}, fmt.Errorf("invalid address %q", display)
	}
	return common.HexToAddress(display), nil
}

// NormalizeTxID lower-cases txID with a single 0x prefix.
func (a *EVMAdapter) NormalizeTxID(txID string) string {
	return ensure0x(strings.ToLower(strings.TrimSpace(txID)))
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	n, err := a.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return n, nil
}

func (a *EVMAdapter) GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	raw, err := hexutil.Decode(a.NormalizeTxID(txID))
	if err != nil || len(raw) != common.HashLength {
		return nil, domain.NewError(domain.KindInvalidInput, "transaction id must be 32 bytes of hex",
			map[string]any{"txid": txID})
	}

	r, err := a.backend.TransactionReceipt(ctx, common.BytesToHash(raw))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if r == nil {
		return nil, nil
	}

	return a.toReceipt(r), nil
}

func (a *EVMAdapter) toReceipt(r *types.Receipt) *domain.Receipt {
	receipt := &domain.Receipt{
		TxID:   strings.ToLower(r.TxHash.Hex()),
		Result: "FAILED",
		Logs:   make([]domain.Log, 0, len(r.Logs)),
	}
	if r.Status == types.ReceiptStatusSuccessful {
		receipt.Result = domain.ReceiptResultSuccess
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}

	for _, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		for i, t := range l.Topics {
			topics[i] = t.Hex()
		}
		receipt.Logs = append(receipt.Logs, domain.Log{
			Address: a.FormatAddress(l.Address),
			Topics:  topics,
			Data:    hexutil.Encode(l.Data),
		})
	}
	return receipt
}

func (a *EVMAdapter) ReadTokenDecimals(ctx context.Context, token string) (int32, error) {
	addr, err := a.ParseAddress(token)
	if err != nil {
		return 0, fmt.Errorf("invalid token address: %w", err)
	}

	input, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals() failed: %w", err)
	}

	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decimals() returned malformed data: %w", err)
	}
	d, ok := values[0].(uint8)
	if !ok || d > 77 {
		return 0, fmt.Errorf("decimals() returned out-of-range value %v", values[0])
	}

	a.log.Debug("token decimals read", "token", addr.Hex(), "decimals", d)
	return int32(d), nil
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
