/*

This file contains an in-memory money market. Liquidity is the balance its own address holds on
an asset ledger; positions are tracked per account, denom and, for debt, per rate mode.

Health factor = sum(supplied * price) * liquidation threshold / sum(debt * price), scaled by 1e18.
An account without debt reports NoDebtHealthFactor.

*/

package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/types"
)

var (
	ErrInsufficientSupply   = errors.New("withdraw exceeds supplied amount")
	ErrHealthFactorTooLow   = errors.New("health factor would fall below one")
	ErrInvalidRateMode      = errors.New("rate mode must be stable or variable")
	ErrNoDebt               = errors.New("no debt to repay")
	ErrDelegationNotAllowed = errors.New("borrowing on behalf of another account is not supported")
)

var (
	healthScale = sdkmath.NewInt(1_000_000_000_000_000_000)
	// NoDebtHealthFactor is reported for accounts that owe nothing.
	NoDebtHealthFactor = healthScale.MulRaw(1_000)
)

// LendingPool is an in-memory LendingMarket that also reports position value and health.
type LendingPool struct {
	mu                   sync.Mutex
	address              sdk.AccAddress
	ledger               collab.AssetLedger
	liquidationThreshold uint64 // basis points of collateral value counted against debt
	prices               map[string]sdkmath.LegacyDec
	supplied             map[string]map[string]sdkmath.Int                  // account -> denom -> amount
	debt                 map[string]map[string]map[types.RateMode]sdkmath.Int // account -> denom -> mode -> amount
	journal              journal
}

// NewLendingPool creates a market lending out of the balances address holds on ledger.
func NewLendingPool(address sdk.AccAddress, ledger collab.AssetLedger, liquidationThreshold uint64) (*LendingPool, error) {
	if address.Empty() {
		return nil, ErrEmptyAddress
	}
	if ledger == nil {
		return nil, errors.New("asset ledger cannot be nil")
	}
	if err := fees.ValidateBasisPoints(liquidationThreshold); err != nil {
		return nil, err
	}
	return &LendingPool{
		address:              address,
		ledger:               ledger,
		liquidationThreshold: liquidationThreshold,
		prices:               make(map[string]sdkmath.LegacyDec),
		supplied:             make(map[string]map[string]sdkmath.Int),
		debt:                 make(map[string]map[string]map[types.RateMode]sdkmath.Int),
	}, nil
}

// SetPrice sets the valuation price of denom. Unpriced denoms are valued at one.
func (l *LendingPool) SetPrice(denom string, price sdkmath.LegacyDec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prices[denom] = price
}

func (l *LendingPool) Address() sdk.AccAddress {
	return l.address
}

func (l *LendingPool) Supply(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, onBehalfOf sdk.AccAddress, _ uint16) error {
	if err := validateTransfer(caller, onBehalfOf, denom, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ledger.TransferFrom(ctx, l.address, caller, l.address, denom, amount); err != nil {
		return fmt.Errorf("failed to pull supply: %w", err)
	}
	account := onBehalfOf.String()
	l.setSuppliedLocked(account, denom, l.suppliedLocked(account, denom).Add(amount))
	return nil
}

func (l *LendingPool) Withdraw(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, to sdk.AccAddress) (sdkmath.Int, error) {
	if err := validateTransfer(caller, to, denom, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	account := caller.String()
	have := l.suppliedLocked(account, denom)
	if have.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: supplied %s%s, requested %s", ErrInsufficientSupply, have, denom, amount)
	}
	l.setSuppliedLocked(account, denom, have.Sub(amount))
	if err := l.requireHealthyLocked(account); err != nil {
		l.setSuppliedLocked(account, denom, have)
		return sdkmath.ZeroInt(), err
	}
	if err := l.ledger.Transfer(ctx, l.address, to, denom, amount); err != nil {
		l.setSuppliedLocked(account, denom, have)
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pay out withdrawal: %w", err)
	}
	return amount, nil
}

func (l *LendingPool) Borrow(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode, _ uint16, onBehalfOf sdk.AccAddress) error {
	if err := validateTransfer(caller, onBehalfOf, denom, amount); err != nil {
		return err
	}
	if !caller.Equals(onBehalfOf) {
		return ErrDelegationNotAllowed
	}
	if rateMode != types.RateModeStable && rateMode != types.RateModeVariable {
		return fmt.Errorf("%w: %s", ErrInvalidRateMode, rateMode)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	account := caller.String()
	prev := l.debtLocked(account, denom, rateMode)
	l.setDebtLocked(account, denom, rateMode, prev.Add(amount))
	if err := l.requireHealthyLocked(account); err != nil {
		l.setDebtLocked(account, denom, rateMode, prev)
		return err
	}
	if err := l.ledger.Transfer(ctx, l.address, caller, denom, amount); err != nil {
		l.setDebtLocked(account, denom, rateMode, prev)
		return fmt.Errorf("%w: %w", ErrInsufficientLiquidity, err)
	}
	return nil
}

func (l *LendingPool) Repay(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode, onBehalfOf sdk.AccAddress) (sdkmath.Int, error) {
	if err := validateTransfer(caller, onBehalfOf, denom, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	account := onBehalfOf.String()
	owed := l.debtLocked(account, denom, rateMode)
	if owed.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %s debt of %s", ErrNoDebt, rateMode, denom, onBehalfOf)
	}
	repaid := sdkmath.MinInt(amount, owed)
	if err := l.ledger.TransferFrom(ctx, l.address, caller, l.address, denom, repaid); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pull repayment: %w", err)
	}
	l.setDebtLocked(account, denom, rateMode, owed.Sub(repaid))
	return repaid, nil
}

// PositionValue returns supplied minus owed for denom across all rate modes.
func (l *LendingPool) PositionValue(_ context.Context, account sdk.AccAddress, denom string) (sdkmath.Int, error) {
	if account.Empty() {
		return sdkmath.ZeroInt(), ErrEmptyAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := account.String()
	value := l.suppliedLocked(key, denom)
	for _, owed := range l.debt[key][denom] {
		value = value.Sub(owed)
	}
	return value, nil
}

func (l *LendingPool) HealthFactor(_ context.Context, account sdk.AccAddress) (sdkmath.Int, error) {
	if account.Empty() {
		return sdkmath.ZeroInt(), ErrEmptyAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.healthFactorLocked(account.String()), nil
}

// Debt returns what account owes in denom under rateMode.
func (l *LendingPool) Debt(account sdk.AccAddress, denom string, rateMode types.RateMode) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debtLocked(account.String(), denom, rateMode)
}

// Supplied returns what account has supplied in denom.
func (l *LendingPool) Supplied(account sdk.AccAddress, denom string) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppliedLocked(account.String(), denom)
}

func (l *LendingPool) Checkpoint() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.checkpoint()
}

func (l *LendingPool) RevertTo(checkpoint int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal.revertTo(checkpoint)
}

func (l *LendingPool) Commit(int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal.commit()
}

func (l *LendingPool) requireHealthyLocked(account string) error {
	hf := l.healthFactorLocked(account)
	if hf.LT(healthScale) {
		return fmt.Errorf("%w: %s", ErrHealthFactorTooLow, sdkmath.LegacyNewDecFromBigIntWithPrec(hf.BigInt(), sdkmath.LegacyPrecision))
	}
	return nil
}

func (l *LendingPool) healthFactorLocked(account string) sdkmath.Int {
	debtValue := sdkmath.LegacyZeroDec()
	for denom, modes := range l.debt[account] {
		for _, owed := range modes {
			debtValue = debtValue.Add(l.priceLocked(denom).MulInt(owed))
		}
	}
	if !debtValue.IsPositive() {
		return NoDebtHealthFactor
	}
	collateralValue := sdkmath.LegacyZeroDec()
	for denom, amount := range l.supplied[account] {
		collateralValue = collateralValue.Add(l.priceLocked(denom).MulInt(amount))
	}
	threshold := sdkmath.LegacyNewDecWithPrec(int64(l.liquidationThreshold), 4)
	hf := collateralValue.Mul(threshold).Quo(debtValue)

	// LegacyDec stores 18 decimal places, so its raw integer is already 1e18-scaled
	return sdkmath.NewIntFromBigInt(new(big.Int).Set(hf.BigInt()))
}

func (l *LendingPool) priceLocked(denom string) sdkmath.LegacyDec {
	if price, ok := l.prices[denom]; ok {
		return price
	}
	return sdkmath.LegacyOneDec()
}

func (l *LendingPool) suppliedLocked(account, denom string) sdkmath.Int {
	if amount, ok := l.supplied[account][denom]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (l *LendingPool) setSuppliedLocked(account, denom string, amount sdkmath.Int) {
	positions, ok := l.supplied[account]
	if !ok {
		positions = make(map[string]sdkmath.Int)
		l.supplied[account] = positions
	}
	prev, had := positions[denom]
	l.journal.record(func() {
		if had {
			positions[denom] = prev
		} else {
			delete(positions, denom)
		}
	})
	positions[denom] = amount
}

func (l *LendingPool) debtLocked(account, denom string, mode types.RateMode) sdkmath.Int {
	if amount, ok := l.debt[account][denom][mode]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (l *LendingPool) setDebtLocked(account, denom string, mode types.RateMode, amount sdkmath.Int) {
	byDenom, ok := l.debt[account]
	if !ok {
		byDenom = make(map[string]map[types.RateMode]sdkmath.Int)
		l.debt[account] = byDenom
	}
	modes, ok := byDenom[denom]
	if !ok {
		modes = make(map[types.RateMode]sdkmath.Int)
		byDenom[denom] = modes
	}
	prev, had := modes[mode]
	l.journal.record(func() {
		if had {
			modes[mode] = prev
		} else {
			delete(modes, mode)
		}
	})
	if amount.IsZero() {
		delete(modes, mode)
		return
	}
	modes[mode] = amount
}
