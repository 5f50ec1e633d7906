package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Load reads configuration from a YAML file. A .env file next to the working
// directory, when present, is loaded first so ${VAR} references resolve.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
	if c.Redis.DecimalsTTL == 0 {
		c.Redis.DecimalsTTL = 24 * time.Hour
	}
	if c.Chain.Type == "" {
		c.Chain.Type = domain.ChainTypeTron
	}
	if c.Chain.Network == "" {
		c.Chain.Network = string(c.Chain.Type)
	}
	if c.Chain.RequestTimeout == 0 {
		c.Chain.RequestTimeout = 10 * time.Second
	}
	if c.Chain.PaymentContract.Event == "" {
		c.Chain.PaymentContract.Event = "PaymentDetected"
	}
	if c.Chain.MerchantRegistry.Event == "" {
		c.Chain.MerchantRegistry.Event = "MerchantOnboarded"
	}
	if c.Chain.Token.Symbol == "" {
		c.Chain.Token.Symbol = "USDT"
	}
	for i := range c.Chain.Providers {
		if c.Chain.Providers[i].Name == "" {
			c.Chain.Providers[i].Name = fmt.Sprintf("%s-%d", c.Chain.Network, i)
		}
	}
}

// Validate checks the settings the reconciliation path cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error
	if !c.Chain.Type.Valid() {
		errs = append(errs, fmt.Errorf("chain.type %q is not supported", c.Chain.Type))
	}
	if len(c.Chain.Providers) == 0 {
		errs = append(errs, errors.New("chain.providers: at least one provider is required"))
	}
	seen := make(map[string]bool, len(c.Chain.Providers))
	for i, p := range c.Chain.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("chain.providers[%d].url is required", i))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("chain.providers[%d].name %q is duplicated", i, p.Name))
		}
		seen[p.Name] = true
	}
	if c.Chain.PaymentContract.Address == "" {
		errs = append(errs, errors.New("chain.payment_contract.address is required"))
	}
	if c.Chain.PaymentContract.ABIPath == "" {
		errs = append(errs, errors.New("chain.payment_contract.abi_path is required"))
	}
	if c.Chain.MerchantRegistry.Address != "" && c.Chain.MerchantRegistry.ABIPath == "" {
		errs = append(errs, errors.New("chain.merchant_registry.abi_path is required with an address"))
	}
	return errors.Join(errs...)
}
