/*

This file contains the action gateway: role-checked capital actions forwarded to the swap venue,
the lending market and the strategy hook.

Every action first obtains a roles.Authorization. Collaborator failures abort the enclosing
transaction and are reported as ErrCollaboratorFailure without retry.

*/

package vault

import (
	"context"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/roles"
	"github.com/elys-network/hfvault/internal/types"
)

func (v *Vault) authorize(caller sdk.AccAddress, anyOf ...roles.Role) (roles.Authorization, error) {
	auth, err := v.roles.Authorize(caller, anyOf...)
	if err != nil {
		return roles.Authorization{}, translate(err)
	}
	return auth, nil
}

func (v *Vault) receipt(t *tx, auth roles.Authorization, action types.ActionType, in, out sdkmath.Int) types.ActionReceipt {
	return types.ActionReceipt{
		TxID:      t.id,
		Action:    action,
		Caller:    auth.Caller.String(),
		Role:      string(auth.Role),
		AmountIn:  in,
		AmountOut: out,
		Timestamp: v.clock().UTC(),
	}
}

func (v *Vault) emitAction(t *tx, r types.ActionReceipt, attrs map[string]string) {
	t.emit(types.Event{
		Type:       types.EventActionExecuted,
		Assets:     r.AmountIn,
		Receipt:    &r,
		Attributes: attrs,
	})
	v.logger.Info().
		Str("tx_id", t.id).
		Str("action", string(r.Action)).
		Str("caller", r.Caller).
		Str("role", r.Role).
		Str("amount_in", r.AmountIn.String()).
		Str("amount_out", r.AmountOut.String()).
		Msg("Gateway action executed")
}

// Swap sells req.AmountIn of req.Path[0] for at least req.MinAmountOut of the last path denom.
// Requires OWNER or STRATEGY.
func (v *Vault) Swap(ctx context.Context, caller sdk.AccAddress, req types.SwapRequest) (types.ActionReceipt, error) {
	var r types.ActionReceipt
	err := v.run(ctx, "swap", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner, roles.Strategy)
		if err != nil {
			return err
		}
		if len(req.Path) < 2 {
			return errorsmod.Wrapf(ErrInvalidPath, "got %d assets", len(req.Path))
		}
		if err := validateAmount(req.AmountIn); err != nil {
			return err
		}
		if err := validateAmount(req.MinAmountOut); err != nil {
			return err
		}

		venue := v.venue
		denomIn, denomOut := req.Path[0], req.Path[len(req.Path)-1]
		if err := v.callOut("swap approval", func() error {
			return v.ledger.Approve(ctx, v.address, venue.Address(), denomIn, req.AmountIn)
		}); err != nil {
			return err
		}
		var out sdkmath.Int
		if err := v.callOut("swap", func() (err error) {
			out, err = venue.SwapExact(ctx, v.address, req)
			return err
		}); err != nil {
			return err
		}
		if err := v.callOut("swap approval reset", func() error {
			return v.ledger.Approve(ctx, v.address, venue.Address(), denomIn, sdkmath.ZeroInt())
		}); err != nil {
			return err
		}

		r = v.receipt(t, auth, types.ActionSwap, req.AmountIn, out)
		r.TokenOut = &sdk.Coin{Denom: denomOut, Amount: out}
		v.emitAction(t, r, map[string]string{
			"min_amount_out": req.MinAmountOut.String(),
			"denom_in":       denomIn,
			"denom_out":      denomOut,
			"hops":           strconv.Itoa(len(req.Path) - 1),
			"path":           strings.Join(req.Path, ","),
		})
		return nil
	})
	return r, err
}

// DepositToLending supplies amount of the base denom to the lending market on the vault's behalf.
func (v *Vault) DepositToLending(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int) (types.ActionReceipt, error) {
	var r types.ActionReceipt
	err := v.run(ctx, "lending_deposit", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner, roles.Strategy)
		if err != nil {
			return err
		}
		if amount.IsNil() {
			return errorsmod.Wrap(ErrInvalidAmount, "amount is nil")
		}
		market := v.market
		if err := v.callOut("lending approval", func() error {
			return v.ledger.Approve(ctx, v.address, market.Address(), v.baseDenom, amount)
		}); err != nil {
			return err
		}
		if err := v.callOut("lending supply", func() error {
			return market.Supply(ctx, v.address, v.baseDenom, amount, v.address, 0)
		}); err != nil {
			return err
		}
		if err := v.callOut("lending approval reset", func() error {
			return v.ledger.Approve(ctx, v.address, market.Address(), v.baseDenom, sdkmath.ZeroInt())
		}); err != nil {
			return err
		}
		r = v.receipt(t, auth, types.ActionLendingDeposit, amount, amount)
		v.emitAction(t, r, map[string]string{"denom": v.baseDenom})
		return nil
	})
	return r, err
}

// WithdrawFromLending withdraws amount of the base denom from the lending market to the vault.
func (v *Vault) WithdrawFromLending(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int) (types.ActionReceipt, error) {
	var r types.ActionReceipt
	err := v.run(ctx, "lending_withdraw", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner, roles.Strategy)
		if err != nil {
			return err
		}
		if amount.IsNil() {
			return errorsmod.Wrap(ErrInvalidAmount, "amount is nil")
		}
		var withdrawn sdkmath.Int
		if err := v.callOut("lending withdraw", func() (err error) {
			withdrawn, err = v.market.Withdraw(ctx, v.address, v.baseDenom, amount, v.address)
			return err
		}); err != nil {
			return err
		}
		r = v.receipt(t, auth, types.ActionLendingWithdraw, amount, withdrawn)
		v.emitAction(t, r, map[string]string{"denom": v.baseDenom})
		return nil
	})
	return r, err
}

// Borrow borrows amount of denom against the vault's lending position. rateMode is forwarded
// verbatim.
func (v *Vault) Borrow(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode) (types.ActionReceipt, error) {
	var r types.ActionReceipt
	err := v.run(ctx, "borrow", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner, roles.Strategy)
		if err != nil {
			return err
		}
		if amount.IsNil() {
			return errorsmod.Wrap(ErrInvalidAmount, "amount is nil")
		}
		if err := v.callOut("lending borrow", func() error {
			return v.market.Borrow(ctx, v.address, denom, amount, rateMode, 0, v.address)
		}); err != nil {
			return err
		}
		r = v.receipt(t, auth, types.ActionBorrow, amount, amount)
		r.TokenOut = &sdk.Coin{Denom: denom, Amount: amount}
		v.emitAction(t, r, map[string]string{"denom": denom, "rate_mode": rateMode.String()})
		return nil
	})
	return r, err
}

// Repay repays up to amount of the vault's denom debt under rateMode.
func (v *Vault) Repay(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode) (types.ActionReceipt, error) {
	var r types.ActionReceipt
	err := v.run(ctx, "repay", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner, roles.Strategy)
		if err != nil {
			return err
		}
		if amount.IsNil() {
			return errorsmod.Wrap(ErrInvalidAmount, "amount is nil")
		}
		market := v.market
		if err := v.callOut("repay approval", func() error {
			return v.ledger.Approve(ctx, v.address, market.Address(), denom, amount)
		}); err != nil {
			return err
		}
		var repaid sdkmath.Int
		if err := v.callOut("lending repay", func() (err error) {
			repaid, err = market.Repay(ctx, v.address, denom, amount, rateMode, v.address)
			return err
		}); err != nil {
			return err
		}
		if err := v.callOut("repay approval reset", func() error {
			return v.ledger.Approve(ctx, v.address, market.Address(), denom, sdkmath.ZeroInt())
		}); err != nil {
			return err
		}
		r = v.receipt(t, auth, types.ActionRepay, amount, repaid)
		v.emitAction(t, r, map[string]string{"denom": denom, "rate_mode": rateMode.String()})
		return nil
	})
	return r, err
}

// RotateStrategy moves the STRATEGY role from the current holder to next. OWNER only.
func (v *Vault) RotateStrategy(ctx context.Context, caller, next sdk.AccAddress) error {
	return v.run(ctx, "rotate_strategy", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		if next.Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "new strategy")
		}

		hadNext := v.roles.Has(next, roles.Strategy)
		previous, err := v.roles.RotateStrategy(next)
		if err != nil {
			return translate(err)
		}
		t.onRollback(func() {
			if !hadNext {
				_, _ = v.roles.Revoke(next, roles.Strategy)
			}
			if !previous.Empty() && !previous.Equals(next) {
				_, _ = v.roles.Grant(previous, roles.Strategy)
			}
			v.roles.SetStrategyHolder(previous)
		})

		t.emit(types.Event{
			Type: types.EventStrategyRotated,
			Attributes: map[string]string{
				"previous": previous.String(),
				"next":     next.String(),
			},
		})
		v.logger.Info().
			Str("tx_id", t.id).
			Str("previous", previous.String()).
			Str("next", next.String()).
			Msg("Strategy rotated")
		return nil
	})
}

// Rebalance hands the current and target health factor to the strategy hook. OWNER only.
// Without a hook it only records the observation.
func (v *Vault) Rebalance(ctx context.Context, caller sdk.AccAddress) (current, target sdkmath.Int, err error) {
	err = v.run(ctx, "rebalance", caller, func(ctx context.Context, t *tx) error {
		auth, err := v.authorize(caller, roles.Owner)
		if err != nil {
			return err
		}
		if current, err = v.currentHealthFactor(ctx); err != nil {
			return err
		}
		target = v.adapter.Target()

		executed := v.strategyHook != nil
		if executed {
			if err := v.callOut("strategy execute", func() error {
				return v.strategyHook.Execute(ctx, current, target)
			}); err != nil {
				return err
			}
		}

		r := v.receipt(t, auth, types.ActionRebalance, sdkmath.ZeroInt(), sdkmath.ZeroInt())
		t.emit(types.Event{
			Type:    types.EventRebalance,
			Receipt: &r,
			Attributes: map[string]string{
				"current_health_factor": current.String(),
				"target_health_factor":  target.String(),
				"strategy_executed":     strconv.FormatBool(executed),
			},
		})
		v.logger.Info().
			Str("tx_id", t.id).
			Str("current_health_factor", current.String()).
			Str("target_health_factor", target.String()).
			Bool("strategy_executed", executed).
			Msg("Rebalance hook invoked")
		return nil
	})
	return current, target, err
}
