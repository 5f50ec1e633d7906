// Package control wires the store, ledger, cache, engine and HTTP server from
// configuration and owns their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/health"
	"github.com/vietddude/paywatch/internal/infra/cache"
	"github.com/vietddude/paywatch/internal/infra/chain"
	"github.com/vietddude/paywatch/internal/infra/chain/evm"
	"github.com/vietddude/paywatch/internal/infra/chain/tron"
	redisclient "github.com/vietddude/paywatch/internal/infra/redis"
	"github.com/vietddude/paywatch/internal/infra/rpc"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
	"github.com/vietddude/paywatch/internal/orders"
	"github.com/vietddude/paywatch/internal/payment/eventlog"
	"github.com/vietddude/paywatch/internal/reconcile"
	"github.com/vietddude/paywatch/internal/server"
)

const headCacheTTL = 5 * time.Second

// App is the assembled service.
type App struct {
	cfg *config.AppConfig

	Store  storage.Store
	Ledger *cache.CachedLedger
	Engine *reconcile.Engine
	Orders *orders.Service

	rpcClient   *rpc.Client
	evmBackend  *evm.RoutedBackend
	db          *postgres.DB
	redisClient *redisclient.Client
	server      *server.Server
	log         *slog.Logger
}

// NewApp creates the App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}

	// 2. Initialize Ledger
	adapter, err := a.initLedger(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// 3. Decimals cache
	var decimals cache.DecimalsStore = cache.NewMemoryStore()
	backend := "memory"
	if cfg.Redis.URL != "" {
		a.redisClient, err = redisclient.NewClient(ctx, cfg.Redis.Config)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-process decimals cache", "error", err)
		} else {
			decimals = a.redisClient
			backend = "redis"
		}
	}
	a.Ledger = cache.NewCachedLedger(adapter, decimals, backend, cfg.Redis.DecimalsTTL, headCacheTTL)

	// 4. Decoder and engine
	contract, err := normalizeAddress(adapter, cfg.Chain.PaymentContract.Address)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("chain.payment_contract.address: %w", err)
	}
	decoder, err := eventlog.LoadDecoder(cfg.Chain.PaymentContract.ABIPath, eventlog.Options{
		Contract: contract,
		Format:   adapter.FormatAddress,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	var token string
	if cfg.Chain.Token.Address != "" {
		if token, err = normalizeAddress(adapter, cfg.Chain.Token.Address); err != nil {
			a.close()
			return nil, fmt.Errorf("chain.token.address: %w", err)
		}
	}

	a.Engine = reconcile.NewEngine(a.Ledger, decoder, a.Store.Orders(), reconcile.Config{
		EventName:    cfg.Chain.PaymentContract.Event,
		TokenAddress: token,
		TokenSymbol:  cfg.Chain.Token.Symbol,
	})
	a.Orders = orders.NewService(a.Store, cfg.Chain.Token.Symbol)
	if err := a.initRegistry(adapter); err != nil {
		a.close()
		return nil, err
	}

	// 5. HTTP surface
	monitor := health.NewMonitor(a.Store, a.Ledger, a.rpcClient)
	a.server = server.NewServer(server.Config{
		Port:          cfg.Server.Port,
		WebhookSecret: cfg.Server.WebhookSecret,
	}, a.Engine, a.Orders, monitor)

	slog.Info("App initialized",
		"network", cfg.Chain.Network,
		"contract", contract,
		"events", decoder.Events(),
		"token", token,
		"decimals_cache", backend,
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.Store = memory.NewMemoryStorage()
		slog.Info("Using Memory storage")
		return nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	a.Store = postgres.NewStore(db)
	slog.Info("Using PostgreSQL storage", "driver", a.cfg.Database.Driver)
	return nil
}

func (a *App) initLedger(ctx context.Context) (chain.Adapter, error) {
	cc := a.cfg.Chain

	switch cc.Type {
	case domain.ChainTypeTron:
		router := rpc.NewRouter()
		for _, p := range cc.Providers {
			provider := rpc.NewHTTPProvider(p.Name, p.URL, cc.RequestTimeout)
			if p.APIKey != "" {
				provider.SetHeader("TRON-PRO-API-KEY", p.APIKey)
			}
			router.AddProvider(cc.Network, provider)
		}
		a.rpcClient = rpc.NewClient(cc.Network, router)
		return tron.NewTronAdapter(cc.Network, a.rpcClient), nil

	case domain.ChainTypeEVM:
		router := rpc.NewRouter()
		endpoints := make([]evm.Endpoint, 0, len(cc.Providers))
		for _, p := range cc.Providers {
			router.AddProvider(cc.Network, rpc.NewHTTPProvider(p.Name, p.URL, cc.RequestTimeout))
			endpoints = append(endpoints, evm.Endpoint{Name: p.Name, URL: p.URL})
		}
		a.rpcClient = rpc.NewClient(cc.Network, router)

		dialCtx, cancel := context.WithTimeout(ctx, cc.RequestTimeout)
		defer cancel()
		backend, err := evm.DialRouted(dialCtx, a.rpcClient, endpoints)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cc.Network, err)
		}
		a.evmBackend = backend
		return evm.NewEVMAdapter(cc.Network, backend), nil
	}
	return nil, fmt.Errorf("unsupported chain type %q", cc.Type)
}

// initRegistry enables merchant confirmation when a registry contract is configured.
func (a *App) initRegistry(adapter chain.Adapter) error {
	rc := a.cfg.Chain.MerchantRegistry
	if rc.Address == "" {
		return nil
	}
	contract, err := normalizeAddress(adapter, rc.Address)
	if err != nil {
		return fmt.Errorf("chain.merchant_registry.address: %w", err)
	}
	decoder, err := eventlog.LoadDecoder(rc.ABIPath, eventlog.Options{
		Contract: contract,
		Format:   adapter.FormatAddress,
	})
	if err != nil {
		return fmt.Errorf("merchant registry abi: %w", err)
	}
	a.Orders.WithRegistry(&orders.Registry{Ledger: a.Ledger, Decoder: decoder, Event: rc.Event})
	a.log.Info("Merchant registry enabled", "contract", contract, "event", rc.Event)
	return nil
}

// Start runs the HTTP server and background collectors until ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop shuts the server down and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping paywatch...")
	err := a.server.Stop(ctx)
	a.close()
	return err
}

// Close releases connections without touching the server.
func (a *App) Close() {
	a.close()
}

// ProviderDashboard summarizes node providers.
func (a *App) ProviderDashboard() string {
	if a.rpcClient == nil {
		return ""
	}
	return a.rpcClient.Dashboard()
}

func (a *App) close() {
	if a.rpcClient != nil {
		_ = a.rpcClient.Close()
	}
	if a.evmBackend != nil {
		a.evmBackend.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("Failed to close store", "error", err)
		}
	}
}

func normalizeAddress(codec chain.AddressCodec, s string) (string, error) {
	addr, err := codec.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return codec.FormatAddress(addr), nil
}
