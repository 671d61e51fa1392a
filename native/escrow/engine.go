package escrow

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/events"
	"splitescrow/core/types"
	nativecommon "splitescrow/native/common"
)

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowNextID() (uint64, error)
	EscrowCount() (uint64, error)
	EscrowParams() (*Params, error)
	EscrowSetParams(*Params) error
}

// Custodian moves funds between accounts. The ledger holds escrowed funds
// under its own address.
type Custodian interface {
	Transfer(from, to, currency common.Address, amount *big.Int) error
	TransferFrom(spender, from, to, currency common.Address, amount *big.Int) error
}

// ArbitratorRegistry validates and installs arbitrators named at pay time.
type ArbitratorRegistry interface {
	ValidateArbitrator(buyer, seller, arbitrator common.Address) error
	SetArbitrator(caller common.Address, id uint64, arbitrator common.Address, fee uint16) error
}

// Settler executes the payout of a finalized escrow.
type Settler interface {
	Settle(caller common.Address, id uint64, reason SettleReason) (*Payout, error)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine is the escrow ledger: it takes custody of deposits, stores escrow
// records and exposes the guarded mutators used by the dispute, arbitrator
// and claim modules.
type Engine struct {
	addr        common.Address
	modules     Addresses
	state       engineState
	emitter     events.Emitter
	nowFn       func() int64
	bank        Custodian
	arbitrators ArbitratorRegistry
	settler     Settler
}

// NewEngine creates a ledger engine owning addr. Collaborators are attached
// later through Bind.
func NewEngine(addr common.Address) *Engine {
	return &Engine{
		addr:    addr,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Address returns the custody address of the ledger.
func (e *Engine) Address() common.Address { return e.addr }

// Bind attaches the cooperating modules once every address is known.
func (e *Engine) Bind(modules Addresses, bank Custodian, arbitrators ArbitratorRegistry, settler Settler) {
	e.modules = modules
	e.bank = bank
	e.arbitrators = arbitrators
	e.settler = settler
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := esc.Split.Validate(); err != nil {
		return err
	}
	return e.state.EscrowPut(esc)
}

func (e *Engine) bound() error {
	if e.bank == nil || e.arbitrators == nil || e.settler == nil {
		return errNotBound
	}
	return nil
}

// IsPaused implements nativecommon.PauseView for the deposit switch.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName || e == nil || e.state == nil {
		return false
	}
	params, err := e.state.EscrowParams()
	if err != nil || params == nil {
		return false
	}
	return params.Paused
}

// Pay opens a new escrow funded by caller. For native escrows value must equal
// the amount; token escrows are pulled from the caller's allowance to the
// ledger and must carry no value.
func (e *Engine) Pay(caller common.Address, value *big.Int, in DepositInput, arbitrator common.Address, arbitratorFee uint16) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.bound(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return 0, err
	}
	params, err := e.state.EscrowParams()
	if err != nil {
		return 0, err
	}
	buyer := in.Buyer
	if buyer == (common.Address{}) {
		buyer = caller
	}
	if in.Seller == (common.Address{}) || buyer == (common.Address{}) || buyer == in.Seller {
		return 0, ErrInvalidParty
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	if in.MarketplaceFee > 0 && in.Marketplace == (common.Address{}) {
		return 0, ErrInvalidFeeConfiguration
	}
	if arbitratorFee > 0 && arbitrator == (common.Address{}) {
		return 0, ErrInvalidFeeConfiguration
	}
	if uint32(in.MarketplaceFee)+uint32(params.ProtocolFee)+uint32(arbitratorFee) > TotalBips {
		return 0, ErrInvalidFeeConfiguration
	}
	extension := in.ChallengeExtension
	if extension == 0 {
		extension = in.ChallengePeriod
	}
	now := e.now()
	if in.ChallengePeriod == 0 || !windowFits(now, in.ChallengePeriod) || !windowFits(now, extension) {
		return 0, ErrInvalidChallengePeriod
	}
	attached := cloneBigInt(value)
	if in.Currency == NativeCurrency {
		if attached.Cmp(in.Amount) != 0 {
			return 0, ErrCurrencyMismatch
		}
	} else if attached.Sign() != 0 {
		return 0, ErrCurrencyMismatch
	}
	if arbitrator != (common.Address{}) {
		if err := e.arbitrators.ValidateArbitrator(buyer, in.Seller, arbitrator); err != nil {
			return 0, err
		}
	}

	if in.Currency == NativeCurrency {
		err = e.bank.Transfer(caller, e.addr, NativeCurrency, attached)
	} else {
		err = e.bank.TransferFrom(e.addr, caller, e.addr, in.Currency, in.Amount)
	}
	if err != nil {
		return 0, err
	}

	split, err := OutcomeSplit(0, uint16(TotalBips), in.MarketplaceFee, params.ProtocolFee)
	if err != nil {
		return 0, err
	}
	id, err := e.state.EscrowNextID()
	if err != nil {
		return 0, err
	}
	esc := &Escrow{
		ID:                   id,
		Buyer:                buyer,
		Seller:               in.Seller,
		Marketplace:          in.Marketplace,
		MarketplaceFee:       in.MarketplaceFee,
		Currency:             in.Currency,
		Amount:               cloneBigInt(in.Amount),
		ChallengePeriodStart: now,
		ChallengePeriodEnd:   now + int64(in.ChallengePeriod),
		ChallengeExtension:   extension,
		ProtocolFee:          params.ProtocolFee,
		Split:                split,
		CreatedAt:            now,
	}
	if err := e.storeEscrow(esc); err != nil {
		return 0, err
	}
	if arbitrator != (common.Address{}) {
		if err := e.arbitrators.SetArbitrator(e.addr, id, arbitrator, arbitratorFee); err != nil {
			return 0, err
		}
	}
	e.emit(NewPaidEvent(esc, arbitrator, arbitratorFee))
	return id, nil
}

// windowFits reports whether a window of length seconds starting at now ends
// within the int64 timestamp range.
func windowFits(now int64, length uint64) bool {
	if now < 0 {
		return false
	}
	return length <= uint64(math.MaxInt64-now)
}

// GetEscrow returns a copy of the escrow record.
func (e *Engine) GetEscrow(id uint64) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// EscrowCount returns the number of escrows opened so far. Ids are assigned
// sequentially from zero.
func (e *Engine) EscrowCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.EscrowCount()
}

// Release lets the buyer hand the whole amount to the seller at any time
// before the escrow is paid out.
func (e *Engine) Release(caller common.Address, id uint64) (*Payout, error) {
	if err := e.bound(); err != nil {
		return nil, err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if caller != esc.Buyer {
		return nil, ErrUnauthorized
	}
	if esc.Claimed {
		return nil, ErrAlreadyFinalized
	}
	return e.finalize(esc, 0, uint16(TotalBips), ReasonRelease, NewReleasedEvent)
}

// Refund lets the seller return the whole amount to the buyer. It is refused
// while the seller's own challenge is still running.
func (e *Engine) Refund(caller common.Address, id uint64) (*Payout, error) {
	if err := e.bound(); err != nil {
		return nil, err
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if caller != esc.Seller {
		return nil, ErrUnauthorized
	}
	if esc.Claimed {
		return nil, ErrAlreadyFinalized
	}
	if esc.Consensus.Ahead(WhoSeller) && e.now() <= esc.ChallengePeriodEnd {
		return nil, ErrChallengeActive
	}
	return e.finalize(esc, uint16(TotalBips), 0, ReasonRefund, NewRefundedEvent)
}

func (e *Engine) finalize(esc *Escrow, buyer, seller uint16, reason SettleReason, eventFn func(*Escrow, *Payout) *types.Event) (*Payout, error) {
	split, err := OutcomeSplit(buyer, seller, esc.MarketplaceFee, esc.ProtocolFee)
	if err != nil {
		return nil, err
	}
	esc.Split = split
	esc.Consensus = esc.Consensus.Agreement()
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	payout, err := e.settler.Settle(e.addr, esc.ID, reason)
	if err != nil {
		return nil, err
	}
	e.emit(eventFn(esc, payout))
	return payout, nil
}

// ApplySplitAndConsensus overwrites the split and consensus of an open escrow.
// Only the dispute and arbitrator modules may call it.
func (e *Engine) ApplySplitAndConsensus(caller common.Address, id uint64, split Split, consensus Consensus) error {
	if caller == (common.Address{}) || (caller != e.modules.Dispute && caller != e.modules.Arbitrator) {
		return ErrUnauthorized
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Claimed {
		return ErrAlreadyFinalized
	}
	if err := split.Validate(); err != nil {
		return err
	}
	esc.Split = split
	esc.Consensus = consensus
	return e.storeEscrow(esc)
}

// SetChallengeWindow moves the challenge window of an open escrow. Only the
// dispute module may call it.
func (e *Engine) SetChallengeWindow(caller common.Address, id uint64, start, end int64) error {
	if caller == (common.Address{}) || caller != e.modules.Dispute {
		return ErrUnauthorized
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Claimed {
		return ErrAlreadyFinalized
	}
	esc.ChallengePeriodStart = start
	esc.ChallengePeriodEnd = end
	return e.storeEscrow(esc)
}

// MarkClaimed flags the escrow as paid out. Only the claim module may call it.
func (e *Engine) MarkClaimed(caller common.Address, id uint64) error {
	if caller == (common.Address{}) || caller != e.modules.Claim {
		return ErrUnauthorized
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if esc.Claimed {
		return ErrAlreadyFinalized
	}
	esc.Claimed = true
	return e.storeEscrow(esc)
}

// SendShare transfers amount out of ledger custody. Only the claim module may
// call it.
func (e *Engine) SendShare(caller, currency, to common.Address, amount *big.Int) error {
	if caller == (common.Address{}) || caller != e.modules.Claim {
		return ErrUnauthorized
	}
	if err := e.bound(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return e.bank.Transfer(e.addr, to, currency, amount)
}

// Params returns the current governance parameters.
func (e *Engine) Params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, err := e.state.EscrowParams()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

func (e *Engine) updateParams(caller common.Address, eventType string, mutate func(*Params) error) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	if caller == (common.Address{}) || caller != params.Governance {
		return ErrUnauthorized
	}
	if err := mutate(params); err != nil {
		return err
	}
	if err := e.state.EscrowSetParams(params); err != nil {
		return err
	}
	e.emit(newParamsEvent(eventType, params))
	return nil
}

// UpdateProtocolFee changes the protocol fee applied to new splits.
func (e *Engine) UpdateProtocolFee(caller common.Address, bips uint16) error {
	return e.updateParams(caller, EventTypeProtocolFeeUpdated, func(p *Params) error {
		if bips > MaxProtocolFeeBps {
			return ErrInvalidFeeConfiguration
		}
		p.ProtocolFee = bips
		return nil
	})
}

// UpdateGovernance hands governance (and the protocol treasury) to addr.
func (e *Engine) UpdateGovernance(caller, addr common.Address) error {
	return e.updateParams(caller, EventTypeGovernanceUpdated, func(p *Params) error {
		if addr == (common.Address{}) {
			return ErrInvalidParty
		}
		p.Governance = addr
		return nil
	})
}

// SetPaused toggles acceptance of new deposits. Existing escrows are never
// affected.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	return e.updateParams(caller, EventTypeDepositPauseUpdated, func(p *Params) error {
		p.Paused = paused
		return nil
	})
}
