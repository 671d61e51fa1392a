package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/native/escrow"
)

// storedEscrow is the RLP layout of an escrow. RLP has no signed integers, so
// consensus values are zigzag encoded.
type storedEscrow struct {
	ID                   uint64
	Buyer                common.Address
	Seller               common.Address
	Marketplace          common.Address
	MarketplaceFee       uint16
	Currency             common.Address
	Amount               *big.Int
	ChallengePeriodStart uint64
	ChallengePeriodEnd   uint64
	ChallengeExtension   uint64
	ProtocolFee          uint16
	Consensus            [2]uint64
	Split                [4]uint16
	Claimed              bool
	CreatedAt            uint64
}

type storedParams struct {
	Governance  common.Address
	ProtocolFee uint16
	Paused      bool
}

func zigzag(v int16) uint64 {
	return uint64(uint16((v << 1) ^ (v >> 15)))
}

func unzigzag(u uint64) int16 {
	x := uint16(u)
	return int16(x>>1) ^ -int16(x&1)
}

func newStoredEscrow(e *escrow.Escrow) *storedEscrow {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &storedEscrow{
		ID:                   e.ID,
		Buyer:                e.Buyer,
		Seller:               e.Seller,
		Marketplace:          e.Marketplace,
		MarketplaceFee:       e.MarketplaceFee,
		Currency:             e.Currency,
		Amount:               amount,
		ChallengePeriodStart: uint64(e.ChallengePeriodStart),
		ChallengePeriodEnd:   uint64(e.ChallengePeriodEnd),
		ChallengeExtension:   e.ChallengeExtension,
		ProtocolFee:          e.ProtocolFee,
		Consensus:            [2]uint64{zigzag(e.Consensus[0]), zigzag(e.Consensus[1])},
		Split:                e.Split,
		Claimed:              e.Claimed,
		CreatedAt:            uint64(e.CreatedAt),
	}
}

func (s *storedEscrow) toEscrow() *escrow.Escrow {
	out := &escrow.Escrow{
		ID:                   s.ID,
		Buyer:                s.Buyer,
		Seller:               s.Seller,
		Marketplace:          s.Marketplace,
		MarketplaceFee:       s.MarketplaceFee,
		Currency:             s.Currency,
		Amount:               big.NewInt(0),
		ChallengePeriodStart: int64(s.ChallengePeriodStart),
		ChallengePeriodEnd:   int64(s.ChallengePeriodEnd),
		ChallengeExtension:   s.ChallengeExtension,
		ProtocolFee:          s.ProtocolFee,
		Consensus:            escrow.Consensus{unzigzag(s.Consensus[0]), unzigzag(s.Consensus[1])},
		Split:                s.Split,
		Claimed:              s.Claimed,
		CreatedAt:            int64(s.CreatedAt),
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	return out
}

// EscrowPut stores the escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	if e == nil {
		return fmt.Errorf("escrow: nil value")
	}
	if e.ChallengePeriodStart < 0 || e.ChallengePeriodEnd < 0 || e.CreatedAt < 0 {
		return fmt.Errorf("escrow: negative timestamp")
	}
	return m.put(idKey(escrowPrefix, e.ID), newStoredEscrow(e))
}

// EscrowGet loads the escrow record. The boolean reports whether it exists.
func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	stored := new(storedEscrow)
	ok, err := m.get(idKey(escrowPrefix, id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toEscrow(), true, nil
}

// EscrowCount returns the number of ids handed out.
func (m *Manager) EscrowCount() (uint64, error) {
	var count uint64
	if _, err := m.get(escrowCounterKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// EscrowNextID reserves the next sequential escrow id.
func (m *Manager) EscrowNextID() (uint64, error) {
	id, err := m.EscrowCount()
	if err != nil {
		return 0, err
	}
	if err := m.put(escrowCounterKey, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// EscrowParams loads the ledger parameters. Unset parameters read as zero.
func (m *Manager) EscrowParams() (*escrow.Params, error) {
	stored := new(storedParams)
	if _, err := m.get(escrowParamsKey, stored); err != nil {
		return nil, err
	}
	return &escrow.Params{
		Governance:  stored.Governance,
		ProtocolFee: stored.ProtocolFee,
		Paused:      stored.Paused,
	}, nil
}

// EscrowSetParams stores the ledger parameters.
func (m *Manager) EscrowSetParams(p *escrow.Params) error {
	if p == nil {
		return fmt.Errorf("escrow: nil params")
	}
	return m.put(escrowParamsKey, &storedParams{
		Governance:  p.Governance,
		ProtocolFee: p.ProtocolFee,
		Paused:      p.Paused,
	})
}
