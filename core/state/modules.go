package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/native/arbitrator"
	"splitescrow/native/dispute"
)

type storedArbitrator struct {
	Arbitrator      common.Address
	Fee             uint16
	BuyerConsensus  bool
	SellerConsensus bool
	Arbitrated      bool
}

type storedSettlement struct {
	Offer [2]uint16
	By    common.Address
}

// ArbitratorGet loads the arbitrator record of an escrow.
func (m *Manager) ArbitratorGet(id uint64) (*arbitrator.Record, bool, error) {
	stored := new(storedArbitrator)
	ok, err := m.get(idKey(arbitratorPrefix, id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &arbitrator.Record{
		Arbitrator:      stored.Arbitrator,
		Fee:             stored.Fee,
		BuyerConsensus:  stored.BuyerConsensus,
		SellerConsensus: stored.SellerConsensus,
		Arbitrated:      stored.Arbitrated,
	}, true, nil
}

// ArbitratorPut stores the arbitrator record of an escrow.
func (m *Manager) ArbitratorPut(id uint64, rec *arbitrator.Record) error {
	if rec == nil {
		return fmt.Errorf("arbitrator: nil record")
	}
	return m.put(idKey(arbitratorPrefix, id), &storedArbitrator{
		Arbitrator:      rec.Arbitrator,
		Fee:             rec.Fee,
		BuyerConsensus:  rec.BuyerConsensus,
		SellerConsensus: rec.SellerConsensus,
		Arbitrated:      rec.Arbitrated,
	})
}

// SettlementGet loads the latest settlement offer of an escrow.
func (m *Manager) SettlementGet(id uint64) (*dispute.Settlement, bool, error) {
	stored := new(storedSettlement)
	ok, err := m.get(idKey(settlementPrefix, id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &dispute.Settlement{Offer: stored.Offer, By: stored.By}, true, nil
}

// SettlementPut stores the latest settlement offer of an escrow.
func (m *Manager) SettlementPut(id uint64, s *dispute.Settlement) error {
	if s == nil {
		return fmt.Errorf("dispute: nil settlement")
	}
	return m.put(idKey(settlementPrefix, id), &storedSettlement{Offer: s.Offer, By: s.By})
}

// BankBalance returns the balance of owner in currency.
func (m *Manager) BankBalance(owner, currency common.Address) (*big.Int, error) {
	return m.loadBigInt(addressKey(balancePrefix, owner, currency))
}

// BankSetBalance overwrites the balance of owner in currency.
func (m *Manager) BankSetBalance(owner, currency common.Address, amount *big.Int) error {
	return m.writeBigInt(addressKey(balancePrefix, owner, currency), amount)
}

// BankAllowance returns how much spender may pull from owner.
func (m *Manager) BankAllowance(owner, spender, currency common.Address) (*big.Int, error) {
	return m.loadBigInt(addressKey(allowancePrefix, owner, spender, currency))
}

// BankSetAllowance overwrites the allowance of spender over owner's funds.
func (m *Manager) BankSetAllowance(owner, spender, currency common.Address, amount *big.Int) error {
	return m.writeBigInt(addressKey(allowancePrefix, owner, spender, currency), amount)
}
