package dispute

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/events"
	"splitescrow/core/types"
	"splitescrow/native/arbitrator"
	"splitescrow/native/escrow"
)

type engineState interface {
	SettlementGet(id uint64) (*Settlement, bool, error)
	SettlementPut(id uint64, s *Settlement) error
}

// Ledger is the subset of the escrow ledger the dispute module mutates.
type Ledger interface {
	GetEscrow(id uint64) (*escrow.Escrow, error)
	ApplySplitAndConsensus(caller common.Address, id uint64, split escrow.Split, consensus escrow.Consensus) error
	SetChallengeWindow(caller common.Address, id uint64, start, end int64) error
}

// Arbitrators exposes arbitrator assignments.
type Arbitrators interface {
	GetArbitratorData(id uint64) (*arbitrator.Record, error)
}

// Previewer computes the payout an escrow would produce.
type Previewer interface {
	Preview(id uint64, reason escrow.SettleReason) (*escrow.Payout, error)
}

type disputeEvent struct {
	evt *types.Event
}

func (e disputeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e disputeEvent) Event() *types.Event { return e.evt }

// Engine runs the challenge game and settlement negotiation of escrows.
type Engine struct {
	addr        common.Address
	state       engineState
	emitter     events.Emitter
	nowFn       func() int64
	ledger      Ledger
	arbitrators Arbitrators
	previewer   Previewer
}

// NewEngine creates a dispute engine owning addr.
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
func (e *Engine) Bind(ledger Ledger, arbitrators Arbitrators, previewer Previewer) {
	e.ledger = ledger
	e.arbitrators = arbitrators
	e.previewer = previewer
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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
	e.emitter.Emit(disputeEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// open loads an escrow that is still negotiable and resolves caller to a
// party.
func (e *Engine) open(caller common.Address, id uint64) (*escrow.Escrow, int, error) {
	if e == nil || e.state == nil {
		return nil, 0, errNilState
	}
	if e.ledger == nil || e.arbitrators == nil || e.previewer == nil {
		return nil, 0, errNotBound
	}
	esc, err := e.ledger.GetEscrow(id)
	if err != nil {
		return nil, 0, err
	}
	who, ok := esc.Party(caller)
	if !ok {
		return nil, 0, escrow.ErrUnauthorized
	}
	if esc.Claimed || esc.Consensus.Agreed() {
		return nil, 0, escrow.ErrAlreadyFinalized
	}
	rec, err := e.arbitrators.GetArbitratorData(id)
	if err != nil {
		return nil, 0, err
	}
	if rec.Arbitrated {
		return nil, 0, arbitrator.ErrAlreadyArbitrated
	}
	return esc, who, nil
}

// Challenge disputes the current split. The challenger's side becomes the
// baseline, and the counter-party gets a fresh window to answer.
func (e *Engine) Challenge(caller common.Address, id uint64) error {
	esc, who, err := e.open(caller, id)
	if err != nil {
		return err
	}
	now := e.now()
	if now > esc.ChallengePeriodEnd {
		return ErrChallengePeriodExpired
	}
	if now < esc.ChallengePeriodStart {
		return ErrChallengeTooSoon
	}
	if esc.Consensus.Neutral() && who == escrow.WhoSeller {
		return ErrSellerCannotChallengeFirst
	}
	if esc.Consensus.Ahead(who) {
		return ErrChallengeTooSoon
	}
	outcome := [2]uint16{}
	outcome[who] = uint16(escrow.TotalBips)
	split, err := escrow.OutcomeSplit(outcome[0], outcome[1], esc.MarketplaceFee, esc.ProtocolFee)
	if err != nil {
		return err
	}
	consensus := esc.Consensus.Challenged(who)
	if err := e.ledger.ApplySplitAndConsensus(e.addr, id, split, consensus); err != nil {
		return err
	}
	start := esc.ChallengePeriodEnd
	end := int64(math.MaxInt64)
	if esc.ChallengeExtension <= uint64(math.MaxInt64-start) {
		end = start + int64(esc.ChallengeExtension)
	}
	if err := e.ledger.SetChallengeWindow(e.addr, id, start, end); err != nil {
		return err
	}
	esc.Split = split
	esc.Consensus = consensus
	esc.ChallengePeriodStart = start
	esc.ChallengePeriodEnd = end
	e.emit(newChallengeEvent(esc, caller))
	return nil
}

// OfferSettlement records a proposed (buyer, seller) outcome. Consensus is
// left untouched until the counter-party approves.
func (e *Engine) OfferSettlement(caller common.Address, id uint64, offer [2]uint16) error {
	if _, _, err := e.open(caller, id); err != nil {
		return err
	}
	sum := uint32(offer[0]) + uint32(offer[1])
	if sum > escrow.TotalBips {
		return ErrSplitExceedsLimit
	}
	if sum < escrow.TotalBips {
		return escrow.ErrInvalidSplit
	}
	if err := e.state.SettlementPut(id, &Settlement{Offer: offer, By: caller}); err != nil {
		return err
	}
	e.emit(newOfferEvent(id, caller, offer))
	return nil
}

// ApproveSettlement accepts the counter-party's latest offer. The escrow
// becomes claimable with the offered outcome; the returned payout previews
// what the claim will transfer.
func (e *Engine) ApproveSettlement(caller common.Address, id uint64, offer [2]uint16) (*escrow.Payout, error) {
	esc, _, err := e.open(caller, id)
	if err != nil {
		return nil, err
	}
	current, ok, err := e.state.SettlementGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || !current.Pending() {
		return nil, ErrNoMatchingOffer
	}
	if current.By == caller {
		return nil, escrow.ErrUnauthorized
	}
	if current.Offer != offer {
		return nil, ErrNoMatchingOffer
	}
	split, err := escrow.OutcomeSplit(offer[0], offer[1], esc.MarketplaceFee, esc.ProtocolFee)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.ApplySplitAndConsensus(e.addr, id, split, esc.Consensus.Agreement()); err != nil {
		return nil, err
	}
	payout, err := e.previewer.Preview(id, escrow.ReasonClaim)
	if err != nil {
		return nil, err
	}
	e.emit(newApproveEvent(id, caller, offer, payout))
	return payout, nil
}

// GetSettlementDetails returns the latest settlement offer of an escrow.
func (e *Engine) GetSettlementDetails(id uint64) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNotBound
	}
	if _, err := e.ledger.GetEscrow(id); err != nil {
		return nil, err
	}
	current, ok, err := e.state.SettlementGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Settlement{}, nil
	}
	return current.Clone(), nil
}
