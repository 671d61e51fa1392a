package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/native/arbitrator"
	"splitescrow/native/dispute"
	"splitescrow/native/escrow"
)

// Pay opens an escrow funded by caller and returns its id.
func (p *Processor) Pay(ctx context.Context, caller common.Address, value *big.Int, in escrow.DepositInput, arb common.Address, arbFee uint16) (uint64, error) {
	var id uint64
	err := p.Apply(ctx, "pay", func() error {
		var err error
		id, err = p.EscrowEngine.Pay(caller, value, in, arb, arbFee)
		return err
	})
	return id, err
}

// Release hands the escrow to the seller and pays it out.
func (p *Processor) Release(ctx context.Context, caller common.Address, id uint64) (*escrow.Payout, error) {
	var payout *escrow.Payout
	err := p.Apply(ctx, "release", func() error {
		var err error
		payout, err = p.EscrowEngine.Release(caller, id)
		return err
	})
	return payout, err
}

// Refund returns the escrow to the buyer and pays it out.
func (p *Processor) Refund(ctx context.Context, caller common.Address, id uint64) (*escrow.Payout, error) {
	var payout *escrow.Payout
	err := p.Apply(ctx, "refund", func() error {
		var err error
		payout, err = p.EscrowEngine.Refund(caller, id)
		return err
	})
	return payout, err
}

// Challenge disputes the current split of an escrow.
func (p *Processor) Challenge(ctx context.Context, caller common.Address, id uint64) error {
	return p.Apply(ctx, "challenge", func() error {
		return p.DisputeEngine.Challenge(caller, id)
	})
}

// OfferSettlement records a settlement offer.
func (p *Processor) OfferSettlement(ctx context.Context, caller common.Address, id uint64, offer [2]uint16) error {
	return p.Apply(ctx, "offer_settlement", func() error {
		return p.DisputeEngine.OfferSettlement(caller, id, offer)
	})
}

// ApproveSettlement accepts the counter-party's offer and returns the payout
// a claim will execute.
func (p *Processor) ApproveSettlement(ctx context.Context, caller common.Address, id uint64, offer [2]uint16) (*escrow.Payout, error) {
	var payout *escrow.Payout
	err := p.Apply(ctx, "approve_settlement", func() error {
		var err error
		payout, err = p.DisputeEngine.ApproveSettlement(caller, id, offer)
		return err
	})
	return payout, err
}

// ProposeArbitrator records an arbitrator proposal.
func (p *Processor) ProposeArbitrator(ctx context.Context, caller common.Address, id uint64, arb common.Address, fee uint16) error {
	return p.Apply(ctx, "propose_arbitrator", func() error {
		return p.ArbitratorEngine.ProposeArbitrator(caller, id, arb, fee)
	})
}

// ApproveArbitrator binds the proposed arbitrator.
func (p *Processor) ApproveArbitrator(ctx context.Context, caller common.Address, id uint64, arb common.Address, fee uint16) error {
	return p.Apply(ctx, "approve_arbitrator", func() error {
		return p.ArbitratorEngine.ApproveArbitrator(caller, id, arb, fee)
	})
}

// Arbitrate records the arbitrator's decision and pays the escrow out.
func (p *Processor) Arbitrate(ctx context.Context, caller common.Address, id uint64, outcome [2]uint16) (*escrow.Payout, error) {
	var payout *escrow.Payout
	err := p.Apply(ctx, "arbitrate", func() error {
		var err error
		payout, err = p.ArbitratorEngine.Arbitrate(caller, id, outcome)
		return err
	})
	return payout, err
}

// Claim pays out every listed escrow or none of them.
func (p *Processor) Claim(ctx context.Context, caller common.Address, ids []uint64) ([]*escrow.Payout, error) {
	var payouts []*escrow.Payout
	err := p.Apply(ctx, "claim", func() error {
		var err error
		payouts, err = p.ClaimEngine.Claim(caller, ids)
		return err
	})
	return payouts, err
}

// SingleClaim pays out one escrow.
func (p *Processor) SingleClaim(ctx context.Context, caller common.Address, id uint64) (*escrow.Payout, error) {
	var payout *escrow.Payout
	err := p.Apply(ctx, "single_claim", func() error {
		var err error
		payout, err = p.ClaimEngine.SingleClaim(caller, id)
		return err
	})
	return payout, err
}

// UpdateProtocolFee changes the protocol fee.
func (p *Processor) UpdateProtocolFee(ctx context.Context, caller common.Address, bips uint16) error {
	return p.Apply(ctx, "update_protocol_fee", func() error {
		return p.EscrowEngine.UpdateProtocolFee(caller, bips)
	})
}

// UpdateGovernance hands governance to addr.
func (p *Processor) UpdateGovernance(ctx context.Context, caller, addr common.Address) error {
	return p.Apply(ctx, "update_governance", func() error {
		return p.EscrowEngine.UpdateGovernance(caller, addr)
	})
}

// SetPaused toggles acceptance of new deposits.
func (p *Processor) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	return p.Apply(ctx, "set_paused", func() error {
		return p.EscrowEngine.SetPaused(caller, paused)
	})
}

// Approve lets spender pull owner's tokens.
func (p *Processor) Approve(ctx context.Context, owner, spender, currency common.Address, amount *big.Int) error {
	return p.Apply(ctx, "approve", func() error {
		return p.Bank.Approve(owner, spender, currency, amount)
	})
}

// Transfer moves funds between accounts.
func (p *Processor) Transfer(ctx context.Context, from, to, currency common.Address, amount *big.Int) error {
	return p.Apply(ctx, "transfer", func() error {
		return p.Bank.Transfer(from, to, currency, amount)
	})
}

// GetEscrow returns the committed escrow record.
func (p *Processor) GetEscrow(id uint64) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := p.View(func() error {
		var err error
		out, err = p.EscrowEngine.GetEscrow(id)
		return err
	})
	return out, err
}

// EscrowCount returns the number of escrows opened so far.
func (p *Processor) EscrowCount() (uint64, error) {
	var out uint64
	err := p.View(func() error {
		var err error
		out, err = p.EscrowEngine.EscrowCount()
		return err
	})
	return out, err
}

// Params returns the committed ledger parameters.
func (p *Processor) Params() (*escrow.Params, error) {
	var out *escrow.Params
	err := p.View(func() error {
		var err error
		out, err = p.EscrowEngine.Params()
		return err
	})
	return out, err
}

// GetSettlementDetails returns the latest settlement offer of an escrow.
func (p *Processor) GetSettlementDetails(id uint64) (*dispute.Settlement, error) {
	var out *dispute.Settlement
	err := p.View(func() error {
		var err error
		out, err = p.DisputeEngine.GetSettlementDetails(id)
		return err
	})
	return out, err
}

// GetArbitratorData returns the arbitrator record of an escrow.
func (p *Processor) GetArbitratorData(id uint64) (*arbitrator.Record, error) {
	var out *arbitrator.Record
	err := p.View(func() error {
		var err error
		out, err = p.ArbitratorEngine.GetArbitratorData(id)
		return err
	})
	return out, err
}

// PreviewClaim computes what a claim of the escrow would pay right now.
func (p *Processor) PreviewClaim(id uint64) (*escrow.Payout, error) {
	var out *escrow.Payout
	err := p.View(func() error {
		var err error
		out, err = p.ClaimEngine.Preview(id, escrow.ReasonClaim)
		return err
	})
	return out, err
}

// Balance returns the committed balance of owner in currency.
func (p *Processor) Balance(owner, currency common.Address) (*big.Int, error) {
	var out *big.Int
	err := p.View(func() error {
		var err error
		out, err = p.Bank.Balance(owner, currency)
		return err
	})
	return out, err
}

// Allowance returns the committed allowance of spender over owner's funds.
func (p *Processor) Allowance(owner, spender, currency common.Address) (*big.Int, error) {
	var out *big.Int
	err := p.View(func() error {
		var err error
		out, err = p.Bank.Allowance(owner, spender, currency)
		return err
	})
	return out, err
}
