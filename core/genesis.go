package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/state"
	"splitescrow/native/escrow"
)

// GenesisAllocation credits an initial balance.
type GenesisAllocation struct {
	Owner    common.Address
	Currency common.Address
	Amount   *big.Int
}

// Genesis describes the state written on first start.
type Genesis struct {
	Governance  common.Address
	ProtocolFee uint16
	Allocations []GenesisAllocation
}

// Validate checks the genesis parameters.
func (g Genesis) Validate() error {
	if g.Governance == (common.Address{}) {
		return fmt.Errorf("genesis: governance address required")
	}
	if g.ProtocolFee > escrow.MaxProtocolFeeBps {
		return fmt.Errorf("genesis: protocol fee %d exceeds %d bips", g.ProtocolFee, escrow.MaxProtocolFeeBps)
	}
	for i, alloc := range g.Allocations {
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			return fmt.Errorf("genesis: allocation %d must be positive", i)
		}
	}
	return nil
}

// InitGenesis writes g unless the store was initialised before. It reports
// whether anything was written.
func (p *Processor) InitGenesis(ctx context.Context, g Genesis) (bool, error) {
	if err := g.Validate(); err != nil {
		return false, err
	}
	applied := false
	err := p.apply(ctx, "genesis", func(m *state.Manager) error {
		current, err := m.EscrowParams()
		if err != nil {
			return err
		}
		if current.Governance != (common.Address{}) {
			return nil
		}
		if err := m.EscrowSetParams(&escrow.Params{Governance: g.Governance, ProtocolFee: g.ProtocolFee}); err != nil {
			return err
		}
		for _, alloc := range g.Allocations {
			if err := p.Bank.Credit(alloc.Owner, alloc.Currency, alloc.Amount); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
