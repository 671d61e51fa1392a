package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core"
)

// DeployerAddress returns the account whose nonces fix the module addresses.
func (c *Config) DeployerAddress() common.Address {
	return common.HexToAddress(c.Deployer)
}

// CoreGenesis converts the genesis section. ok is false when no governance
// address is configured, in which case nothing is written on start.
func (c *Config) CoreGenesis() (g core.Genesis, ok bool, err error) {
	if strings.TrimSpace(c.Genesis.Governance) == "" {
		return core.Genesis{}, false, nil
	}
	g = core.Genesis{
		Governance:  common.HexToAddress(c.Genesis.Governance),
		ProtocolFee: c.Genesis.ProtocolFeeBps,
	}
	for i, alloc := range c.Genesis.Allocations {
		amount, err := parseUintAmount(alloc.Amount)
		if err != nil {
			return core.Genesis{}, false, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		var currency common.Address
		if alloc.Currency != "" {
			currency = common.HexToAddress(alloc.Currency)
		}
		g.Allocations = append(g.Allocations, core.GenesisAllocation{
			Owner:    common.HexToAddress(alloc.Owner),
			Currency: currency,
			Amount:   amount,
		})
	}
	return g, true, g.Validate()
}
