package claim

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/events"
	"splitescrow/core/types"
	"splitescrow/native/arbitrator"
	"splitescrow/native/escrow"
)

const EventTypeClaimed = "claim.claim"

// Ledger is the subset of the escrow ledger used to pay escrows out.
type Ledger interface {
	GetEscrow(id uint64) (*escrow.Escrow, error)
	Params() (*escrow.Params, error)
	MarkClaimed(caller common.Address, id uint64) error
	SendShare(caller, currency, to common.Address, amount *big.Int) error
}

// Arbitrators exposes arbitrator assignments.
type Arbitrators interface {
	GetArbitratorData(id uint64) (*arbitrator.Record, error)
}

type claimEvent struct {
	evt *types.Event
}

func (e claimEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e claimEvent) Event() *types.Event { return e.evt }

// Engine computes payouts and moves funds out of ledger custody.
type Engine struct {
	addr        common.Address
	modules     escrow.Addresses
	emitter     events.Emitter
	nowFn       func() int64
	ledger      Ledger
	arbitrators Arbitrators
}

// NewEngine creates a claim engine owning addr.
func NewEngine(addr common.Address) *Engine {
	return &Engine{
		addr:    addr,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Address returns the module address used when calling the ledger.
func (e *Engine) Address() common.Address { return e.addr }

// Bind attaches the cooperating modules once every address is known.
func (e *Engine) Bind(modules escrow.Addresses, ledger Ledger, arbitrators Arbitrators) {
	e.modules = modules
	e.ledger = ledger
	e.arbitrators = arbitrators
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(claimEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Claim pays out every escrow in ids. The first failure aborts the batch;
// callers run it inside a single state transition so no partial payout
// survives.
func (e *Engine) Claim(caller common.Address, ids []uint64) ([]*escrow.Payout, error) {
	payouts := make([]*escrow.Payout, 0, len(ids))
	for _, id := range ids {
		payout, err := e.SingleClaim(caller, id)
		if err != nil {
			return nil, fmt.Errorf("claim escrow %d: %w", id, err)
		}
		payouts = append(payouts, payout)
	}
	return payouts, nil
}

// SingleClaim pays out one escrow once both parties agree or the challenge
// period has elapsed. Anyone may trigger it; funds only go to the escrow's
// recipients.
func (e *Engine) SingleClaim(caller common.Address, id uint64) (*escrow.Payout, error) {
	if e.ledger == nil || e.arbitrators == nil {
		return nil, errNotBound
	}
	esc, err := e.ledger.GetEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Claimed {
		return nil, ErrAlreadyClaimed
	}
	if !esc.Claimable(e.now()) {
		return nil, ErrNotYetClaimable
	}
	return e.pay(caller, esc, escrow.ReasonClaim)
}

// Settle pays out an escrow finalized by a release, refund or arbitration.
// Only the ledger and the arbitrator module may call it.
func (e *Engine) Settle(caller common.Address, id uint64, reason escrow.SettleReason) (*escrow.Payout, error) {
	if caller == (common.Address{}) || (caller != e.modules.Ledger && caller != e.modules.Arbitrator) {
		return nil, escrow.ErrUnauthorized
	}
	if e.ledger == nil || e.arbitrators == nil {
		return nil, errNotBound
	}
	esc, err := e.ledger.GetEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Claimed {
		return nil, ErrAlreadyClaimed
	}
	return e.pay(caller, esc, reason)
}

// Preview computes the payout the escrow would produce for reason without
// moving any funds.
func (e *Engine) Preview(id uint64, reason escrow.SettleReason) (*escrow.Payout, error) {
	if e.ledger == nil || e.arbitrators == nil {
		return nil, errNotBound
	}
	esc, err := e.ledger.GetEscrow(id)
	if err != nil {
		return nil, err
	}
	return e.compute(esc, reason)
}

func (e *Engine) compute(esc *escrow.Escrow, reason escrow.SettleReason) (*escrow.Payout, error) {
	params, err := e.ledger.Params()
	if err != nil {
		return nil, err
	}
	rec, err := e.arbitrators.GetArbitratorData(esc.ID)
	if err != nil {
		return nil, err
	}
	split := esc.Split.Widen()
	if chargesArbitrator(esc, rec, reason) {
		split[escrow.WhoArbitrator] = rec.Fee
		split, err = escrow.SplitCalculation(split)
		if err != nil {
			return nil, err
		}
	}
	return &escrow.Payout{
		EscrowID: esc.ID,
		Currency: esc.Currency,
		Reason:   reason,
		Recipients: [5]common.Address{
			esc.Buyer,
			esc.Seller,
			esc.Marketplace,
			params.Governance,
			rec.Arbitrator,
		},
		Split:   split,
		Amounts: escrow.ShareAmounts(esc.Amount, split),
	}, nil
}

// chargesArbitrator reports whether the bound arbitrator earns its fee: only
// after an arbitration or an approved settlement.
func chargesArbitrator(esc *escrow.Escrow, rec *arbitrator.Record, reason escrow.SettleReason) bool {
	if !rec.Bound() || rec.Fee == 0 {
		return false
	}
	switch reason {
	case escrow.ReasonArbitration:
		return true
	case escrow.ReasonClaim:
		return esc.Consensus.Agreed()
	default:
		return false
	}
}

func (e *Engine) pay(caller common.Address, esc *escrow.Escrow, reason escrow.SettleReason) (*escrow.Payout, error) {
	payout, err := e.compute(esc, reason)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.MarkClaimed(e.addr, esc.ID); err != nil {
		return nil, err
	}
	for i, amount := range payout.Amounts {
		if amount.Sign() == 0 {
			continue
		}
		if err := e.ledger.SendShare(e.addr, esc.Currency, payout.Recipients[i], amount); err != nil {
			return nil, err
		}
	}
	evt := &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			escrow.AttrEscrowID: strconv.FormatUint(esc.ID, 10),
			"caller":            caller.Hex(),
			"currency":          esc.Currency.Hex(),
			"split":             escrow.FormatBips(payout.Split[:]),
		},
	}
	escrow.PayoutAttributes(evt.Attributes, payout)
	e.emit(evt)
	return payout, nil
}
