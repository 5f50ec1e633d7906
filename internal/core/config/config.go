package config

import (
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	redisclient "github.com/vietddude/paywatch/internal/infra/redis"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Chain    ChainConfig     `yaml:"chain"`
	Redis    RedisConfig     `yaml:"redis"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database postgres.Config `yaml:"database"` // empty url = memory store
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RedisConfig holds the shared decimals cache settings. Empty url = in-process cache.
type RedisConfig struct {
	redisclient.Config `yaml:",inline"`
	DecimalsTTL        time.Duration `yaml:"decimals_ttl"`
}

// ChainConfig holds settings for the settlement ledger.
type ChainConfig struct {
	Type            domain.ChainType `yaml:"type"` // tron, evm
	Network         string           `yaml:"network"`
	RequestTimeout  time.Duration    `yaml:"request_timeout"`
	Providers       []ProviderConfig `yaml:"providers"`
	PaymentContract ContractConfig   `yaml:"payment_contract"`
	Token           TokenConfig      `yaml:"token"`

	// MerchantRegistry is optional; without it merchants cannot be confirmed on-chain.
	MerchantRegistry ContractConfig `yaml:"merchant_registry"`
}

// ProviderConfig holds settings for a node endpoint.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"` // sent as TRON-PRO-API-KEY on Tron
}

// ContractConfig describes a contract whose events are decoded.
type ContractConfig struct {
	Address string `yaml:"address"`
	ABIPath string `yaml:"abi_path"`
	Event   string `yaml:"event"`
}

// TokenConfig describes the settlement token.
type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}
