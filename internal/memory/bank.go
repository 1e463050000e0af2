/*

This file contains an in-memory multi-denom asset ledger with allowances.

It backs the vault in simulation mode and in tests. Balance and allowance changes made while a
checkpoint is open are journaled so a failed vault transaction can revert them. A revert undoes
every change made since the checkpoint, so while one is open the bank must only be touched from
inside the vault transaction. Mint and Fund enforce this and fail with ErrCheckpointOpen.

*/

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount is nil or negative")
	ErrEmptyAddress          = errors.New("address is empty")
	ErrEmptyDenom            = errors.New("denom is empty")
	ErrCheckpointOpen        = errors.New("ledger has an open checkpoint, retry once the transaction settles")
)

type allowanceKey struct {
	owner   string
	spender string
	denom   string
}

// Bank is an in-memory AssetLedger.
type Bank struct {
	mu         sync.Mutex
	balances   map[string]map[string]sdkmath.Int // account -> denom -> amount
	allowances map[allowanceKey]sdkmath.Int
	journal    journal
}

// NewBank creates an empty ledger.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[string]map[string]sdkmath.Int),
		allowances: make(map[allowanceKey]sdkmath.Int),
	}
}

// Mint credits amount of denom to account out of thin air. Used to fund accounts.
func (b *Bank) Mint(account sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(account, account, denom, amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal.depth > 0 {
		return ErrCheckpointOpen
	}
	b.setBalanceLocked(account.String(), denom, b.balanceLocked(account.String(), denom).Add(amount))
	return nil
}

// Fund mints amount of denom to account and raises account's allowance for spender by the same
// amount, in one step.
func (b *Bank) Fund(account, spender sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(account, spender, denom, amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal.depth > 0 {
		return ErrCheckpointOpen
	}
	key := allowanceKey{owner: account.String(), spender: spender.String(), denom: denom}
	b.setBalanceLocked(key.owner, denom, b.balanceLocked(key.owner, denom).Add(amount))
	b.setAllowanceLocked(key, b.allowanceLocked(key).Add(amount))
	return nil
}

func (b *Bank) Transfer(_ context.Context, from, to sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(from, to, denom, amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(from.String(), to.String(), denom, amount)
}

func (b *Bank) TransferFrom(_ context.Context, spender, owner, to sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if spender.Empty() {
		return ErrEmptyAddress
	}
	if err := validateTransfer(owner, to, denom, amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := allowanceKey{owner: owner.String(), spender: spender.String(), denom: denom}
	allowance := b.allowanceLocked(key)
	if allowance.LT(amount) {
		return fmt.Errorf("%w: %s allows %s %s%s, need %s", ErrInsufficientAllowance, owner, spender, allowance, denom, amount)
	}
	if b.balanceLocked(key.owner, denom).LT(amount) {
		return fmt.Errorf("%w: %s has %s%s, need %s", ErrInsufficientBalance, owner, b.balanceLocked(key.owner, denom), denom, amount)
	}
	b.setAllowanceLocked(key, allowance.Sub(amount))
	return b.moveLocked(key.owner, to.String(), denom, amount)
}

func (b *Bank) Approve(_ context.Context, owner, spender sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(owner, spender, denom, amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAllowanceLocked(allowanceKey{owner: owner.String(), spender: spender.String(), denom: denom}, amount)
	return nil
}

func (b *Bank) BalanceOf(_ context.Context, account sdk.AccAddress, denom string) (sdkmath.Int, error) {
	if account.Empty() {
		return sdkmath.ZeroInt(), ErrEmptyAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(account.String(), denom), nil
}

// Allowance returns how much of owner's denom spender may pull.
func (b *Bank) Allowance(owner, spender sdk.AccAddress, denom string) sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowanceLocked(allowanceKey{owner: owner.String(), spender: spender.String(), denom: denom})
}

func (b *Bank) Checkpoint() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.journal.checkpoint()
}

func (b *Bank) RevertTo(checkpoint int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal.revertTo(checkpoint)
}

func (b *Bank) Commit(int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal.commit()
}

func (b *Bank) moveLocked(from, to, denom string, amount sdkmath.Int) error {
	have := b.balanceLocked(from, denom)
	if have.LT(amount) {
		return fmt.Errorf("%w: %s has %s%s, need %s", ErrInsufficientBalance, from, have, denom, amount)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	b.setBalanceLocked(from, denom, have.Sub(amount))
	b.setBalanceLocked(to, denom, b.balanceLocked(to, denom).Add(amount))
	return nil
}

func (b *Bank) balanceLocked(account, denom string) sdkmath.Int {
	if amount, ok := b.balances[account][denom]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (b *Bank) setBalanceLocked(account, denom string, amount sdkmath.Int) {
	coins, ok := b.balances[account]
	if !ok {
		coins = make(map[string]sdkmath.Int)
		b.balances[account] = coins
	}
	prev, had := coins[denom]
	b.journal.record(func() {
		if had {
			coins[denom] = prev
		} else {
			delete(coins, denom)
		}
	})
	coins[denom] = amount
}

func (b *Bank) allowanceLocked(key allowanceKey) sdkmath.Int {
	if amount, ok := b.allowances[key]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (b *Bank) setAllowanceLocked(key allowanceKey, amount sdkmath.Int) {
	prev, had := b.allowances[key]
	b.journal.record(func() {
		if had {
			b.allowances[key] = prev
		} else {
			delete(b.allowances, key)
		}
	})
	b.allowances[key] = amount
}

func validateTransfer(from, to sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if from.Empty() || to.Empty() {
		return ErrEmptyAddress
	}
	if denom == "" {
		return ErrEmptyDenom
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
