package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/types"
)

type shareAllowanceKey struct {
	owner   string
	spender string
}

// shareLedger holds share supply, balances and allowances. Mutations go through a tx so they
// can be undone.
type shareLedger struct {
	supply     sdkmath.Int
	balances   map[string]sdkmath.Int
	allowances map[shareAllowanceKey]sdkmath.Int
}

func newShareLedger() *shareLedger {
	return &shareLedger{
		supply:     sdkmath.ZeroInt(),
		balances:   make(map[string]sdkmath.Int),
		allowances: make(map[shareAllowanceKey]sdkmath.Int),
	}
}

func (l *shareLedger) balanceOf(account string) sdkmath.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (l *shareLedger) allowance(owner, spender string) sdkmath.Int {
	if a, ok := l.allowances[shareAllowanceKey{owner: owner, spender: spender}]; ok {
		return a
	}
	return sdkmath.ZeroInt()
}

func (l *shareLedger) setBalance(t *tx, account string, amount sdkmath.Int) {
	prev, had := l.balances[account]
	t.onRollback(func() {
		if had {
			l.balances[account] = prev
		} else {
			delete(l.balances, account)
		}
	})
	if amount.IsZero() {
		delete(l.balances, account)
		return
	}
	l.balances[account] = amount
}

func (l *shareLedger) setAllowance(t *tx, key shareAllowanceKey, amount sdkmath.Int) {
	prev, had := l.allowances[key]
	t.onRollback(func() {
		if had {
			l.allowances[key] = prev
		} else {
			delete(l.allowances, key)
		}
	})
	if amount.IsZero() {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = amount
}

func (l *shareLedger) setSupply(t *tx, supply sdkmath.Int) {
	prev := l.supply
	t.onRollback(func() { l.supply = prev })
	l.supply = supply
}

func (l *shareLedger) mint(t *tx, to sdk.AccAddress, amount sdkmath.Int) error {
	supply, err := l.supply.SafeAdd(amount)
	if err != nil {
		return errorsmod.Wrap(ErrAmountOverflow, "share supply")
	}
	account := to.String()
	balance, err := l.balanceOf(account).SafeAdd(amount)
	if err != nil {
		return errorsmod.Wrap(ErrAmountOverflow, "share balance")
	}
	l.setSupply(t, supply)
	l.setBalance(t, account, balance)
	return nil
}

func (l *shareLedger) burn(t *tx, from sdk.AccAddress, amount sdkmath.Int) error {
	account := from.String()
	balance := l.balanceOf(account)
	if balance.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientShares, "%s holds %s shares, needs %s", account, balance, amount)
	}
	l.setBalance(t, account, balance.Sub(amount))
	l.setSupply(t, l.supply.Sub(amount))
	return nil
}

func (l *shareLedger) move(t *tx, from, to sdk.AccAddress, amount sdkmath.Int) error {
	if from.Equals(to) {
		if l.balanceOf(from.String()).LT(amount) {
			return errorsmod.Wrapf(ErrInsufficientShares, "%s holds %s shares, needs %s", from, l.balanceOf(from.String()), amount)
		}
		return nil
	}
	if err := l.burn(t, from, amount); err != nil {
		return err
	}
	return l.mint(t, to, amount)
}

// spendAllowance lets spender use amount of owner's shares. Owners spend their own shares freely.
func (l *shareLedger) spendAllowance(t *tx, owner, spender sdk.AccAddress, amount sdkmath.Int) error {
	if owner.Equals(spender) {
		return nil
	}
	key := shareAllowanceKey{owner: owner.String(), spender: spender.String()}
	allowed := l.allowance(key.owner, key.spender)
	if allowed.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientAllowance, "%s may spend %s of %s's shares, needs %s", spender, allowed, owner, amount)
	}
	l.setAllowance(t, key, allowed.Sub(amount))
	return nil
}

// BalanceOf returns the shares held by account.
func (v *Vault) BalanceOf(ctx context.Context, account sdk.AccAddress) (sdkmath.Int, error) {
	var balance sdkmath.Int
	err := v.view(ctx, func(context.Context) error {
		balance = v.shares.balanceOf(account.String())
		return nil
	})
	return balance, err
}

// ShareAllowance returns how many of owner's shares spender may withdraw or redeem.
func (v *Vault) ShareAllowance(ctx context.Context, owner, spender sdk.AccAddress) (sdkmath.Int, error) {
	var allowed sdkmath.Int
	err := v.view(ctx, func(context.Context) error {
		allowed = v.shares.allowance(owner.String(), spender.String())
		return nil
	})
	return allowed, err
}

// ApproveShares sets how many of caller's shares spender may use.
func (v *Vault) ApproveShares(ctx context.Context, caller, spender sdk.AccAddress, amount sdkmath.Int) error {
	return v.run(ctx, "approve_shares", caller, func(ctx context.Context, t *tx) error {
		if caller.Empty() || spender.Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "caller and spender are required")
		}
		if err := validateAmount(amount); err != nil {
			return err
		}
		v.shares.setAllowance(t, shareAllowanceKey{owner: caller.String(), spender: spender.String()}, amount)
		t.emit(types.Event{
			Type:     types.EventSharesApproved,
			Owner:    caller.String(),
			Receiver: spender.String(),
			Shares:   amount,
		})
		return nil
	})
}

// TransferShares moves amount of caller's shares to receiver.
func (v *Vault) TransferShares(ctx context.Context, caller, receiver sdk.AccAddress, amount sdkmath.Int) error {
	return v.run(ctx, "transfer_shares", caller, func(ctx context.Context, t *tx) error {
		if caller.Empty() || receiver.Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "caller and receiver are required")
		}
		if err := validateAmount(amount); err != nil {
			return err
		}
		if err := v.shares.move(t, caller, receiver, amount); err != nil {
			return err
		}
		t.emit(types.Event{
			Type:     types.EventSharesTransferred,
			Owner:    caller.String(),
			Receiver: receiver.String(),
			Shares:   amount,
		})
		return nil
	})
}

func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return errorsmod.Wrap(ErrInvalidAmount, "amount is nil")
	}
	if amount.IsNegative() {
		return errorsmod.Wrapf(ErrInvalidAmount, "amount %s is negative", amount)
	}
	return nil
}
