package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vietddude/paywatch/internal/infra/rpc"
)

// Endpoint names one JSON-RPC URL. Name must match the provider registered
// with the router for the same URL.
type Endpoint struct {
	Name string
	URL  string
}

// RoutedBackend implements Backend over several endpoints. Every call goes
// through the rpc client, which picks the provider; the call then runs on the
// ethclient dialed for that provider.
type RoutedBackend struct {
	client   rpc.RPCClient
	backends map[string]Backend
	closers  []func()
}

// NewRoutedBackend routes calls to backends keyed by provider name.
func NewRoutedBackend(client rpc.RPCClient, backends map[string]Backend) *RoutedBackend {
	return &RoutedBackend{client: client, backends: backends}
}

// DialRouted dials one ethclient per endpoint and routes through client.
func DialRouted(ctx context.Context, client rpc.RPCClient, endpoints []Endpoint) (*RoutedBackend, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no evm endpoints")
	}
	b := NewRoutedBackend(client, make(map[string]Backend, len(endpoints)))
	for _, ep := range endpoints {
		ec, err := ethclient.DialContext(ctx, ep.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("dial %s: %w", ep.Name, err)
		}
		b.backends[ep.Name] = ec
		b.closers = append(b.closers, ec.Close)
	}
	return b, nil
}

// Close releases the dialed clients.
func (b *RoutedBackend) Close() {
	for _, c := range b.closers {
		c()
	}
	b.closers = nil
}

func (b *RoutedBackend) call(ctx context.Context, method string, fn func(ctx context.Context, be Backend) (any, error)) (any, error) {
	return b.client.Execute(ctx, rpc.NewInvokeOperation(method, func(ctx context.Context, p rpc.Provider) (any, error) {
		be, ok := b.backends[p.GetName()]
		if !ok {
			return nil, fmt.Errorf("no evm client for provider %s", p.GetName())
		}
		return fn(ctx, be)
	}))
}

func (b *RoutedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := b.call(ctx, "eth_call", func(ctx context.Context, be Backend) (any, error) {
		return be.CallContract(ctx, msg, blockNumber)
	})
	if err != nil {
		return nil, err
	}
	data, _ := out.([]byte)
	return data, nil
}

// TransactionReceipt returns ethereum.NotFound for unknown hashes. A missing
// receipt counts as a successful call so it is neither retried nor failed over.
func (b *RoutedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	out, err := b.call(ctx, "eth_getTransactionReceipt", func(ctx context.Context, be Backend) (any, error) {
		r, err := be.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return (*types.Receipt)(nil), nil
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}
	r, _ := out.(*types.Receipt)
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *RoutedBackend) BlockNumber(ctx context.Context) (uint64, error) {
	out, err := b.call(ctx, "eth_blockNumber", func(ctx context.Context, be Backend) (any, error) {
		return be.BlockNumber(ctx)
	})
	if err != nil {
		return 0, err
	}
	n, _ := out.(uint64)
	return n, nil
}
