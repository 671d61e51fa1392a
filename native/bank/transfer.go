package bank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitescrow/core/types"
)

// Transfer moves amount of currency from one account to another.
func (k *Keeper) Transfer(from, to, currency common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := k.Balance(from, currency)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := k.Balance(to, currency)
	if err != nil {
		return err
	}
	if err := k.state.BankSetBalance(from, currency, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := k.state.BankSetBalance(to, currency, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	k.emit(&types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":     from.Hex(),
			"to":       to.Hex(),
			"currency": currency.Hex(),
			"amount":   amount.String(),
		},
	})
	return nil
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming
// spender's allowance.
func (k *Keeper) TransferFrom(spender, owner, to, currency common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := k.Allowance(owner, spender, currency)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := k.Transfer(owner, to, currency, amount); err != nil {
		return err
	}
	return k.state.BankSetAllowance(owner, spender, currency, new(big.Int).Sub(allowance, amount))
}
