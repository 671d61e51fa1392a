package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/native/escrow"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	switch c.DBBackend {
	case BackendLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("data dir required for leveldb backend")
		}
	case BackendMemDB:
	default:
		return fmt.Errorf("db backend %q not supported", c.DBBackend)
	}
	if !common.IsHexAddress(c.Deployer) {
		return fmt.Errorf("deployer %q is not a hex address", c.Deployer)
	}
	if c.Genesis.Governance != "" && !common.IsHexAddress(c.Genesis.Governance) {
		return fmt.Errorf("genesis: Governance %q is not a hex address", c.Genesis.Governance)
	}
	if c.Genesis.ProtocolFeeBps > escrow.MaxProtocolFeeBps {
		return fmt.Errorf("genesis: ProtocolFeeBps %d exceeds %d", c.Genesis.ProtocolFeeBps, escrow.MaxProtocolFeeBps)
	}
	for i, alloc := range c.Genesis.Allocations {
		if !common.IsHexAddress(alloc.Owner) {
			return fmt.Errorf("genesis: allocation %d owner %q is not a hex address", i, alloc.Owner)
		}
		if alloc.Currency != "" && !common.IsHexAddress(alloc.Currency) {
			return fmt.Errorf("genesis: allocation %d currency %q is not a hex address", i, alloc.Currency)
		}
		if _, err := parseUintAmount(alloc.Amount); err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when RequestsPerSecond is set")
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: DSN required when enabled")
	}
	return nil
}

// Secret resolves the signing secret, falling back to the configured
// environment variable.
func (a Auth) Secret() string {
	if secret := strings.TrimSpace(a.JWTSecret); secret != "" {
		return secret
	}
	if env := strings.TrimSpace(a.JWTSecretEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}
