package bank

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/events"
	"splitescrow/core/types"
	nativecommon "splitescrow/native/common"
)

const ModuleName = "bank"

const (
	CodeInsufficientBalance   nativecommon.Code = "InsufficientBalance"
	CodeInsufficientAllowance nativecommon.Code = "InsufficientAllowance"
	CodeInvalidAmount         nativecommon.Code = "InvalidAmount"
)

var (
	ErrInsufficientBalance   = nativecommon.NewError(ModuleName, CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientAllowance = nativecommon.NewError(ModuleName, CodeInsufficientAllowance, "insufficient allowance")
	ErrInvalidAmount         = nativecommon.NewError(ModuleName, CodeInvalidAmount, "amount must not be negative")

	errNilState = errors.New("bank: state not configured")
)

const (
	EventTypeTransfer = "bank.transfer"
	EventTypeApproval = "bank.approval"
)

type keeperState interface {
	BankBalance(owner, currency common.Address) (*big.Int, error)
	BankSetBalance(owner, currency common.Address, amount *big.Int) error
	BankAllowance(owner, spender, currency common.Address) (*big.Int, error)
	BankSetAllowance(owner, spender, currency common.Address, amount *big.Int) error
}

type bankEvent struct {
	evt *types.Event
}

func (e bankEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bankEvent) Event() *types.Event { return e.evt }

// Keeper holds native and token balances keyed by (owner, currency). The zero
// currency address denotes the native asset.
type Keeper struct {
	state   keeperState
	emitter events.Emitter
}

// NewKeeper returns a keeper with a no-op emitter.
func NewKeeper() *Keeper {
	return &Keeper{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the keeper.
func (k *Keeper) SetState(state keeperState) { k.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (k *Keeper) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		k.emitter = events.NoopEmitter{}
		return
	}
	k.emitter = emitter
}

func (k *Keeper) emit(evt *types.Event) {
	if k == nil || k.emitter == nil || evt == nil {
		return
	}
	k.emitter.Emit(bankEvent{evt: evt})
}

// Balance returns the balance of owner in currency.
func (k *Keeper) Balance(owner, currency common.Address) (*big.Int, error) {
	if k == nil || k.state == nil {
		return nil, errNilState
	}
	return k.state.BankBalance(owner, currency)
}

// Allowance returns how much spender may pull from owner in currency.
func (k *Keeper) Allowance(owner, spender, currency common.Address) (*big.Int, error) {
	if k == nil || k.state == nil {
		return nil, errNilState
	}
	return k.state.BankAllowance(owner, spender, currency)
}

// Credit mints amount to owner. It is used for genesis allocations.
func (k *Keeper) Credit(owner, currency common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := k.Balance(owner, currency)
	if err != nil {
		return err
	}
	return k.state.BankSetBalance(owner, currency, new(big.Int).Add(balance, amount))
}

// Approve sets the allowance of spender over owner's currency balance.
func (k *Keeper) Approve(owner, spender, currency common.Address, amount *big.Int) error {
	if k == nil || k.state == nil {
		return errNilState
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := k.state.BankSetAllowance(owner, spender, currency, amount); err != nil {
		return err
	}
	k.emit(&types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"currency": currency.Hex(),
			"amount":   amount.String(),
		},
	})
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}
