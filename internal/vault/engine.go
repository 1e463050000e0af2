/*

This file contains the conversion engine: previews and settlement for deposit, mint, withdraw
and redeem.

The pool ratio uses a virtual offset of one share and one asset, so conversions stay defined on
an empty vault and the first depositor cannot inflate the share price. Amounts are first bent by
the target health factor and then converted at the pool ratio. Entry and exit fees always round
in favour of the vault.

*/

package vault

import (
	"context"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/types"
)

// poolRatio converts between assets and shares at a fixed snapshot of the vault totals.
type poolRatio struct {
	assets sdkmath.Int
	supply sdkmath.Int
}

func (r poolRatio) ConvertToShares(assets sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	return mulDiv(assets, r.supply.AddRaw(1), r.assets.AddRaw(1), rounding)
}

func (r poolRatio) ConvertToAssets(shares sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	return mulDiv(shares, r.assets.AddRaw(1), r.supply.AddRaw(1), rounding)
}

func mulDiv(x, y, d sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	if x.IsNil() || x.IsNegative() {
		return sdkmath.ZeroInt(), errorsmod.Wrap(ErrInvalidAmount, "conversion input is nil or negative")
	}
	product := new(big.Int).Mul(x.BigInt(), y.BigInt())
	quo, rem := new(big.Int).QuoRem(product, d.BigInt(), new(big.Int))
	if rounding == types.RoundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if quo.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), errorsmod.Wrap(ErrAmountOverflow, "conversion result")
	}
	return sdkmath.NewIntFromBigInt(quo), nil
}

func (v *Vault) ratio(ctx context.Context) (poolRatio, error) {
	assets, err := v.totalAssets(ctx)
	if err != nil {
		return poolRatio{}, err
	}
	return poolRatio{assets: assets, supply: v.shares.supply}, nil
}

func (v *Vault) toShareSpace(ctx context.Context, assets sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	r, err := v.ratio(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	shares, err := v.adapter.ToShareSpace(r, assets, rounding)
	return shares, translate(err)
}

func (v *Vault) toAssetSpace(ctx context.Context, shares sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	r, err := v.ratio(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	assets, err := v.adapter.ToAssetSpace(r, shares, rounding)
	return assets, translate(err)
}

func (v *Vault) previewDeposit(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	fee, err := fees.FeeOnTotal(assets, v.entryFeeBasisPoints)
	if err != nil {
		return sdkmath.ZeroInt(), translate(err)
	}
	return v.toShareSpace(ctx, assets.Sub(fee), types.RoundDown)
}

func (v *Vault) previewMint(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	assets, err := v.toAssetSpace(ctx, shares, types.RoundUp)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	fee, err := fees.FeeOnRaw(assets, v.entryFeeBasisPoints)
	if err != nil {
		return sdkmath.ZeroInt(), translate(err)
	}
	total, err := assets.SafeAdd(fee)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(ErrAmountOverflow, "mint assets")
	}
	return total, nil
}

func (v *Vault) previewWithdraw(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	fee, err := fees.FeeOnRaw(assets, v.exitFeeBasisPoints)
	if err != nil {
		return sdkmath.ZeroInt(), translate(err)
	}
	gross, err := assets.SafeAdd(fee)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrap(ErrAmountOverflow, "withdraw assets")
	}
	return v.toShareSpace(ctx, gross, types.RoundUp)
}

func (v *Vault) previewRedeem(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	assets, err := v.toAssetSpace(ctx, shares, types.RoundDown)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	fee, err := fees.FeeOnTotal(assets, v.exitFeeBasisPoints)
	if err != nil {
		return sdkmath.ZeroInt(), translate(err)
	}
	return assets.Sub(fee), nil
}

func (v *Vault) maxWithdraw(ctx context.Context, owner sdk.AccAddress) (sdkmath.Int, error) {
	return v.previewRedeem(ctx, v.shares.balanceOf(owner.String()))
}

// settleDeposit pulls the net assets into the vault, mints shares to receiver and then routes
// the entry fee from caller to the entry fee recipient.
func (v *Vault) settleDeposit(ctx context.Context, t *tx, caller, receiver sdk.AccAddress, assets, shares sdkmath.Int) error {
	fee, err := fees.FeeOnTotal(assets, v.entryFeeBasisPoints)
	if err != nil {
		return translate(err)
	}
	net := assets.Sub(fee)
	external := fee.IsPositive() && !v.entryFeeRecipient.Equals(v.address)

	pull := assets
	if external {
		pull = net
	}
	if err := v.callOut("deposit transfer", func() error {
		return v.ledger.TransferFrom(ctx, v.address, caller, v.address, v.baseDenom, pull)
	}); err != nil {
		return err
	}
	if err := v.shares.mint(t, receiver, shares); err != nil {
		return err
	}
	if external {
		if err := v.callOut("entry fee transfer", func() error {
			return v.ledger.TransferFrom(ctx, v.address, caller, v.entryFeeRecipient, v.baseDenom, fee)
		}); err != nil {
			return err
		}
	}

	t.emit(types.Event{
		Type:     types.EventDeposit,
		Receiver: receiver.String(),
		Owner:    receiver.String(),
		Assets:   assets,
		Shares:   shares,
		Fee:      fee,
	})
	if fee.IsPositive() {
		t.emit(types.Event{
			Type:       types.EventFeeCollected,
			Receiver:   v.entryFeeRecipient.String(),
			Assets:     fee,
			Fee:        fee,
			Attributes: map[string]string{"direction": "entry"},
		})
	}

	v.logger.Info().
		Str("tx_id", t.id).
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Str("assets", assets.String()).
		Str("net_assets", net.String()).
		Str("shares", shares.String()).
		Str("fee", fee.String()).
		Msg("Deposit settled")
	return nil
}

// settleWithdraw burns shares from owner, pays assets to receiver and then routes the exit fee,
// charged on top of assets, from the vault to the exit fee recipient.
func (v *Vault) settleWithdraw(ctx context.Context, t *tx, caller, receiver, owner sdk.AccAddress, assets, shares sdkmath.Int) error {
	fee, err := fees.FeeOnRaw(assets, v.exitFeeBasisPoints)
	if err != nil {
		return translate(err)
	}
	if err := v.shares.spendAllowance(t, owner, caller, shares); err != nil {
		return err
	}
	if err := v.shares.burn(t, owner, shares); err != nil {
		return err
	}
	if err := v.callOut("withdraw transfer", func() error {
		return v.ledger.Transfer(ctx, v.address, receiver, v.baseDenom, assets)
	}); err != nil {
		return err
	}
	if fee.IsPositive() && !v.exitFeeRecipient.Equals(v.address) {
		if err := v.callOut("exit fee transfer", func() error {
			return v.ledger.Transfer(ctx, v.address, v.exitFeeRecipient, v.baseDenom, fee)
		}); err != nil {
			return err
		}
	}

	t.emit(types.Event{
		Type:     types.EventWithdraw,
		Receiver: receiver.String(),
		Owner:    owner.String(),
		Assets:   assets,
		Shares:   shares,
		Fee:      fee,
	})
	if fee.IsPositive() {
		t.emit(types.Event{
			Type:       types.EventFeeCollected,
			Receiver:   v.exitFeeRecipient.String(),
			Assets:     fee,
			Fee:        fee,
			Attributes: map[string]string{"direction": "exit"},
		})
	}

	v.logger.Info().
		Str("tx_id", t.id).
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Str("owner", owner.String()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Str("fee", fee.String()).
		Msg("Withdrawal settled")
	return nil
}

// PreviewDeposit returns the shares minted for depositing assets, net of the entry fee.
func (v *Vault) PreviewDeposit(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, assets, v.previewDeposit)
}

// PreviewMint returns the assets, entry fee included, needed to mint shares.
func (v *Vault) PreviewMint(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, shares, v.previewMint)
}

// PreviewWithdraw returns the shares burned to pay out assets plus the exit fee.
func (v *Vault) PreviewWithdraw(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, assets, v.previewWithdraw)
}

// PreviewRedeem returns the assets paid out for redeeming shares, net of the exit fee.
func (v *Vault) PreviewRedeem(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, shares, v.previewRedeem)
}

// ConvertToShares returns the fee-free share amount for assets at the adjusted exchange rate.
func (v *Vault) ConvertToShares(ctx context.Context, assets sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, assets, func(ctx context.Context, a sdkmath.Int) (sdkmath.Int, error) {
		return v.toShareSpace(ctx, a, types.RoundDown)
	})
}

// ConvertToAssets returns the fee-free asset amount for shares at the adjusted exchange rate.
func (v *Vault) ConvertToAssets(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	return v.preview(ctx, shares, func(ctx context.Context, s sdkmath.Int) (sdkmath.Int, error) {
		return v.toAssetSpace(ctx, s, types.RoundDown)
	})
}

// MaxWithdraw returns the most assets owner can withdraw.
func (v *Vault) MaxWithdraw(ctx context.Context, owner sdk.AccAddress) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.view(ctx, func(ctx context.Context) error {
		var err error
		out, err = v.maxWithdraw(ctx, owner)
		return err
	})
	return out, err
}

// MaxRedeem returns the most shares owner can redeem.
func (v *Vault) MaxRedeem(ctx context.Context, owner sdk.AccAddress) (sdkmath.Int, error) {
	return v.BalanceOf(ctx, owner)
}

func (v *Vault) preview(ctx context.Context, amount sdkmath.Int, fn func(context.Context, sdkmath.Int) (sdkmath.Int, error)) (sdkmath.Int, error) {
	if err := validateAmount(amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	var out sdkmath.Int
	err := v.view(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx, amount)
		return err
	})
	return out, err
}

// Deposit pulls assets from caller and mints shares to receiver. Caller must have approved the
// vault on the asset ledger.
func (v *Vault) Deposit(ctx context.Context, caller sdk.AccAddress, assets sdkmath.Int, receiver sdk.AccAddress) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.run(ctx, "deposit", caller, func(ctx context.Context, t *tx) error {
		if err := requireAccounts(caller, receiver); err != nil {
			return err
		}
		if err := validateAmount(assets); err != nil {
			return err
		}
		var err error
		if shares, err = v.previewDeposit(ctx, assets); err != nil {
			return err
		}
		if assets.IsPositive() && shares.IsZero() {
			return errorsmod.Wrapf(ErrInvalidAmount, "deposit of %s mints no shares", assets)
		}
		return v.settleDeposit(ctx, t, caller, receiver, assets, shares)
	})
	return shares, err
}

// Mint mints exactly shares to receiver, pulling the required assets from caller.
func (v *Vault) Mint(ctx context.Context, caller sdk.AccAddress, shares sdkmath.Int, receiver sdk.AccAddress) (sdkmath.Int, error) {
	var assets sdkmath.Int
	err := v.run(ctx, "mint", caller, func(ctx context.Context, t *tx) error {
		if err := requireAccounts(caller, receiver); err != nil {
			return err
		}
		if err := validateAmount(shares); err != nil {
			return err
		}
		var err error
		if assets, err = v.previewMint(ctx, shares); err != nil {
			return err
		}
		return v.settleDeposit(ctx, t, caller, receiver, assets, shares)
	})
	return assets, err
}

// Withdraw pays exactly assets to receiver, burning owner's shares. A caller other than owner
// spends owner's share allowance.
func (v *Vault) Withdraw(ctx context.Context, caller sdk.AccAddress, assets sdkmath.Int, receiver, owner sdk.AccAddress) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.run(ctx, "withdraw", caller, func(ctx context.Context, t *tx) error {
		if err := requireAccounts(caller, receiver, owner); err != nil {
			return err
		}
		if err := validateAmount(assets); err != nil {
			return err
		}
		limit, err := v.maxWithdraw(ctx, owner)
		if err != nil {
			return err
		}
		if assets.GT(limit) {
			return errorsmod.Wrapf(ErrExceededMaxWithdraw, "requested %s, max %s", assets, limit)
		}
		if shares, err = v.previewWithdraw(ctx, assets); err != nil {
			return err
		}
		return v.settleWithdraw(ctx, t, caller, receiver, owner, assets, shares)
	})
	return shares, err
}

// Redeem burns exactly shares from owner and pays the resulting assets to receiver.
func (v *Vault) Redeem(ctx context.Context, caller sdk.AccAddress, shares sdkmath.Int, receiver, owner sdk.AccAddress) (sdkmath.Int, error) {
	var assets sdkmath.Int
	err := v.run(ctx, "redeem", caller, func(ctx context.Context, t *tx) error {
		if err := requireAccounts(caller, receiver, owner); err != nil {
			return err
		}
		if err := validateAmount(shares); err != nil {
			return err
		}
		if limit := v.shares.balanceOf(owner.String()); shares.GT(limit) {
			return errorsmod.Wrapf(ErrExceededMaxRedeem, "requested %s, max %s", shares, limit)
		}
		var err error
		if assets, err = v.previewRedeem(ctx, shares); err != nil {
			return err
		}
		return v.settleWithdraw(ctx, t, caller, receiver, owner, assets, shares)
	})
	return assets, err
}

func requireAccounts(accounts ...sdk.AccAddress) error {
	for _, a := range accounts {
		if a.Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "account is required")
		}
	}
	return nil
}
