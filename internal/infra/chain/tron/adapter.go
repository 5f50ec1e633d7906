package tron

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/rpc"
)

// maxDecimals bounds what a token may report; larger values are treated as a bad read.
const maxDecimals = 77

// TronAdapter implements chain.Adapter for the Tron network.
// Tron uses an HTTP API (not JSON-RPC), so calls go out as REST operations.
// API docs: https://developers.tron.network/reference
type TronAdapter struct {
	network string
	client  rpc.RPCClient
	log     *slog.Logger
}

// NewTronAdapter creates a new Tron adapter.
func NewTronAdapter(network string, client rpc.RPCClient) *TronAdapter {
	return &TronAdapter{
		network: network,
		client:  client,
		log:     slog.Default().With("component", "tron", "network", network),
	}
}

// Network returns the network label.
func (a *TronAdapter) Network() string {
	return a.network
}

// FormatAddress renders an account in base58check form.
func (a *TronAdapter) FormatAddress(addr common.Address) string {
	return FormatAddress(addr)
}

// ParseAddress parses any accepted Tron address spelling.
func (a *TronAdapter) ParseAddress(display string) (common.Address, error) {
	return ParseAddress(display)
}

// NormalizeTxID lower-cases txID and drops any 0x prefix; Tron ids are bare hex.
func (a *TronAdapter) NormalizeTxID(txID string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txID)), "0x")
}

// GetLatestBlock returns the latest block number on Tron.
func (a *TronAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	result, err := a.client.Execute(ctx, rpc.WalletCall("getnowblock", nil))
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}

	blockData, ok := result.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("invalid block response format")
	}

	blockHeader, ok := blockData["block_header"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("missing block_header")
	}

	rawData, ok := blockHeader["raw_data"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("missing raw_data in block_header")
	}

	number, ok := rawData["number"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid block number")
	}

	return uint64(number), nil
}

// GetTransactionReceipt fetches execution info for a transaction.
// The node answers {} for transactions it has not indexed yet.
func (a *TronAdapter) GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	txID = a.NormalizeTxID(txID)
	if len(txID) != 64 {
		return nil, domain.NewError(domain.KindInvalidInput, "transaction id must be 32 bytes of hex",
			map[string]any{"txid": txID})
	}
	if _, err := hex.DecodeString(txID); err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "transaction id is not hex",
			map[string]any{"txid": txID})
	}

	op := rpc.WalletCall("gettransactioninfobyid", map[string]any{"value": txID})
	result, err := a.client.Execute(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction info: %w", err)
	}

	info, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid transaction info format")
	}
	if msg, ok := info["Error"].(string); ok {
		return nil, fmt.Errorf("node error: %s", msg)
	}

	id, _ := info["id"].(string)
	if id == "" {
		return nil, nil
	}

	return a.parseReceipt(id, info)
}

func (a *TronAdapter) parseReceipt(id string, info map[string]any) (*domain.Receipt, error) {
	receipt := &domain.Receipt{TxID: strings.ToLower(id)}

	if r, ok := info["receipt"].(map[string]any); ok {
		if res, ok := r["result"].(string); ok {
			receipt.Result = strings.ToUpper(res)
		}
	}
	// Failed executions also carry a top-level "result": "FAILED".
	if receipt.Result == "" {
		if res, ok := info["result"].(string); ok {
			receipt.Result = strings.ToUpper(res)
		}
	}

	if bn, ok := info["blockNumber"].(float64); ok {
		receipt.BlockNumber = uint64(bn)
	}

	rawLogs, _ := info["log"].([]any)
	receipt.Logs = make([]domain.Log, 0, len(rawLogs))
	for i, raw := range rawLogs {
		logData, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("log %d: invalid format", i)
		}

		var log domain.Log
		if addr, ok := logData["address"].(string); ok && addr != "" {
			parsed, err := ParseAddress(addr)
			if err != nil {
				return nil, fmt.Errorf("log %d: %w", i, err)
			}
			log.Address = FormatAddress(parsed)
		}

		if topics, ok := logData["topics"].([]any); ok {
			for _, t := range topics {
				if s, ok := t.(string); ok {
					log.Topics = append(log.Topics, s)
				}
			}
		}
		log.Data, _ = logData["data"].(string)

		receipt.Logs = append(receipt.Logs, log)
	}

	return receipt, nil
}

// ReadTokenDecimals calls decimals() on a TRC20 contract.
func (a *TronAdapter) ReadTokenDecimals(ctx context.Context, token string) (int32, error) {
	addr, err := ParseAddress(token)
	if err != nil {
		return 0, fmt.Errorf("invalid token address: %w", err)
	}
	contract := FormatAddress(addr)

	op := rpc.WalletCall("triggerconstantcontract", map[string]any{
		"owner_address":     contract,
		"contract_address":  contract,
		"function_selector": "decimals()",
		"parameter":         "",
		"visible":           true,
	})
	result, err := a.client.Execute(ctx, op)
	if err != nil {
		return 0, fmt.Errorf("failed to call decimals(): %w", err)
	}

	resp, ok := result.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("invalid constant call response")
	}
	if res, ok := resp["result"].(map[string]any); ok {
		if okFlag, _ := res["result"].(bool); !okFlag {
			msg, _ := res["message"].(string)
			return 0, fmt.Errorf("decimals() rejected: %s", decodeMessage(msg))
		}
	}

	outputs, _ := resp["constant_result"].([]any)
	if len(outputs) == 0 {
		return 0, fmt.Errorf("decimals() returned no data")
	}
	word, _ := outputs[0].(string)
	n, ok := new(big.Int).SetString(strings.TrimPrefix(word, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("decimals() returned malformed data %q", word)
	}
	if !n.IsInt64() || n.Int64() > maxDecimals {
		return 0, fmt.Errorf("decimals() returned out-of-range value %s", n)
	}

	a.log.Debug("token decimals read", "token", contract, "decimals", n.Int64())
	return int32(n.Int64()), nil
}

// decodeMessage unwraps the hex-encoded error messages the node returns.
func decodeMessage(msg string) string {
	if b, err := hex.DecodeString(msg); err == nil && len(b) > 0 {
		return string(b)
	}
	return msg
}
