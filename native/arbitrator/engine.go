package arbitrator

import (
	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/events"
	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

type engineState interface {
	ArbitratorGet(id uint64) (*Record, bool, error)
	ArbitratorPut(id uint64, rec *Record) error
}

// Ledger is the subset of the escrow ledger used by the arbitrator module.
type Ledger interface {
	GetEscrow(id uint64) (*escrow.Escrow, error)
	ApplySplitAndConsensus(caller common.Address, id uint64, split escrow.Split, consensus escrow.Consensus) error
}

type arbitratorEvent struct {
	evt *types.Event
}

func (e arbitratorEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e arbitratorEvent) Event() *types.Event { return e.evt }

// Engine manages arbitrator proposals and binding decisions.
type Engine struct {
	addr    common.Address
	modules escrow.Addresses
	state   engineState
	emitter events.Emitter
	ledger  Ledger
	settler escrow.Settler
}

// NewEngine creates an arbitrator engine owning addr.
func NewEngine(addr common.Address) *Engine {
	return &Engine{addr: addr, emitter: events.NoopEmitter{}}
}

// Address returns the module address used when calling the ledger.
func (e *Engine) Address() common.Address { return e.addr }

// Bind attaches the cooperating modules once every address is known.
func (e *Engine) Bind(modules escrow.Addresses, ledger Ledger, settler escrow.Settler) {
	e.modules = modules
	e.ledger = ledger
	e.settler = settler
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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
	e.emitter.Emit(arbitratorEvent{evt: evt})
}

func (e *Engine) load(id uint64) (*escrow.Escrow, *Record, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if e.ledger == nil || e.settler == nil {
		return nil, nil, errNotBound
	}
	esc, err := e.ledger.GetEscrow(id)
	if err != nil {
		return nil, nil, err
	}
	rec, ok, err := e.state.ArbitratorGet(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		rec = &Record{}
	}
	return esc, rec, nil
}

// ValidateArbitrator rejects arbitrators that are missing or one of the
// parties.
func (e *Engine) ValidateArbitrator(buyer, seller, arbitrator common.Address) error {
	if arbitrator == (common.Address{}) || arbitrator == buyer || arbitrator == seller {
		return ErrInvalidArbitrator
	}
	return nil
}

// SetArbitrator installs an arbitrator named at pay time. Both parties are
// considered to have consented. Only the ledger may call it.
func (e *Engine) SetArbitrator(caller common.Address, id uint64, arbitrator common.Address, fee uint16) error {
	if caller == (common.Address{}) || caller != e.modules.Ledger {
		return escrow.ErrUnauthorized
	}
	esc, rec, err := e.load(id)
	if err != nil {
		return err
	}
	if rec.Bound() {
		return ErrArbitratorAlreadySet
	}
	if err := e.ValidateArbitrator(esc.Buyer, esc.Seller, arbitrator); err != nil {
		return err
	}
	return e.state.ArbitratorPut(id, &Record{
		Arbitrator:      arbitrator,
		Fee:             fee,
		BuyerConsensus:  true,
		SellerConsensus: true,
	})
}

// ProposeArbitrator records a party's arbitrator proposal. A new proposal
// replaces any proposal that has not been approved yet.
func (e *Engine) ProposeArbitrator(caller common.Address, id uint64, arbitrator common.Address, fee uint16) error {
	esc, rec, err := e.load(id)
	if err != nil {
		return err
	}
	who, ok := esc.Party(caller)
	if !ok {
		return escrow.ErrUnauthorized
	}
	if esc.Claimed || esc.Consensus.Agreed() {
		return escrow.ErrAlreadyFinalized
	}
	if rec.Arbitrated {
		return ErrAlreadyArbitrated
	}
	if rec.Bound() {
		return ErrArbitratorAlreadySet
	}
	if err := e.ValidateArbitrator(esc.Buyer, esc.Seller, arbitrator); err != nil {
		return err
	}
	if uint32(esc.MarketplaceFee)+uint32(esc.ProtocolFee)+uint32(fee) > escrow.TotalBips {
		return escrow.ErrInvalidFeeConfiguration
	}
	next := &Record{
		Arbitrator:      arbitrator,
		Fee:             fee,
		BuyerConsensus:  who == escrow.WhoBuyer,
		SellerConsensus: who == escrow.WhoSeller,
	}
	if err := e.state.ArbitratorPut(id, next); err != nil {
		return err
	}
	e.emit(newRecordEvent(EventTypeProposed, id, caller, next))
	return nil
}

// ApproveArbitrator binds the arbitrator proposed by the counter-party. The
// address and fee must repeat the proposal exactly.
func (e *Engine) ApproveArbitrator(caller common.Address, id uint64, arbitrator common.Address, fee uint16) error {
	esc, rec, err := e.load(id)
	if err != nil {
		return err
	}
	who, ok := esc.Party(caller)
	if !ok {
		return escrow.ErrUnauthorized
	}
	if rec.Bound() {
		return ErrAlreadyApproved
	}
	if !rec.Pending() {
		return ErrNoProposal
	}
	if err := e.ValidateArbitrator(esc.Buyer, esc.Seller, arbitrator); err != nil {
		return err
	}
	if rec.ProposedBy(who) {
		return escrow.ErrUnauthorized
	}
	if arbitrator != rec.Arbitrator {
		return ErrProposalAddressMismatch
	}
	if fee != rec.Fee {
		return ErrProposalFeeMismatch
	}
	if esc.Claimed || esc.Consensus.Agreed() {
		return escrow.ErrAlreadyFinalized
	}
	rec.BuyerConsensus = true
	rec.SellerConsensus = true
	if err := e.state.ArbitratorPut(id, rec); err != nil {
		return err
	}
	e.emit(newRecordEvent(EventTypeApproved, id, caller, rec))
	return nil
}

// Arbitrate records the bound arbitrator's decision and pays the escrow out
// immediately, arbitrator fee included.
func (e *Engine) Arbitrate(caller common.Address, id uint64, outcome [2]uint16) (*escrow.Payout, error) {
	esc, rec, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !rec.Bound() || caller != rec.Arbitrator {
		return nil, escrow.ErrUnauthorized
	}
	if rec.Arbitrated {
		return nil, ErrAlreadyArbitrated
	}
	if esc.Claimed {
		return nil, escrow.ErrAlreadyFinalized
	}
	if !esc.Consensus.Disputed() {
		return nil, ErrNotDisputed
	}
	if uint32(outcome[0])+uint32(outcome[1]) != escrow.TotalBips {
		return nil, escrow.ErrInvalidSplit
	}
	split, err := escrow.OutcomeSplit(outcome[0], outcome[1], esc.MarketplaceFee, esc.ProtocolFee)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.ApplySplitAndConsensus(e.addr, id, split, esc.Consensus.Arbitrated()); err != nil {
		return nil, err
	}
	rec.Arbitrated = true
	if err := e.state.ArbitratorPut(id, rec); err != nil {
		return nil, err
	}
	payout, err := e.settler.Settle(e.addr, id, escrow.ReasonArbitration)
	if err != nil {
		return nil, err
	}
	e.emit(newArbitratedEvent(id, rec, outcome, payout))
	return payout, nil
}

// GetArbitratorData returns the arbitrator record of an escrow. Escrows
// without an arbitrator report an empty record.
func (e *Engine) GetArbitratorData(id uint64) (*Record, error) {
	_, rec, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// ArbitrationCalculation turns (buyerOutcome, sellerOutcome, marketplaceFee,
// protocolFee, arbitratorFee) into the 5-way payout split an arbitration
// would produce.
func ArbitrationCalculation(in [5]uint16) ([5]uint16, error) {
	split, err := escrow.OutcomeSplit(in[0], in[1], in[2], in[3])
	if err != nil {
		return [5]uint16{}, err
	}
	widened := split.Widen()
	widened[escrow.WhoArbitrator] = in[4]
	return escrow.SplitCalculation(widened)
}
