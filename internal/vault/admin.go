package vault

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/roles"
	"github.com/elys-network/hfvault/internal/types"
)

// UpdateFeeBasisPoints sets the entry and exit fee rates. OWNER only; rates above 10000 are rejected.
func (v *Vault) UpdateFeeBasisPoints(ctx context.Context, caller sdk.AccAddress, entry, exit uint64) error {
	return v.run(ctx, "update_fee_basis_points", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		for _, bp := range []uint64{entry, exit} {
			if err := fees.ValidateBasisPoints(bp); err != nil {
				return translate(err)
			}
		}
		prevEntry, prevExit := v.entryFeeBasisPoints, v.exitFeeBasisPoints
		t.onRollback(func() { v.entryFeeBasisPoints, v.exitFeeBasisPoints = prevEntry, prevExit })
		v.entryFeeBasisPoints, v.exitFeeBasisPoints = entry, exit

		t.emit(types.Event{
			Type: types.EventFeeBasisPointsUpdated,
			Attributes: map[string]string{
				"entry_fee_basis_points": strconv.FormatUint(entry, 10),
				"exit_fee_basis_points":  strconv.FormatUint(exit, 10),
			},
		})
		v.logger.Info().Uint64("entry_fee_bps", entry).Uint64("exit_fee_bps", exit).Msg("Fee basis points updated")
		return nil
	})
}

// UpdateFeeRecipients sets where entry and exit fees are routed. OWNER only.
func (v *Vault) UpdateFeeRecipients(ctx context.Context, caller, entry, exit sdk.AccAddress) error {
	return v.run(ctx, "update_fee_recipients", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		if entry.Empty() || exit.Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "fee recipient")
		}
		prevEntry, prevExit := v.entryFeeRecipient, v.exitFeeRecipient
		t.onRollback(func() { v.entryFeeRecipient, v.exitFeeRecipient = prevEntry, prevExit })
		v.entryFeeRecipient, v.exitFeeRecipient = entry, exit

		t.emit(types.Event{
			Type: types.EventFeeRecipientsUpdated,
			Attributes: map[string]string{
				"entry_fee_recipient": entry.String(),
				"exit_fee_recipient":  exit.String(),
			},
		})
		v.logger.Info().Str("entry_fee_recipient", entry.String()).Str("exit_fee_recipient", exit.String()).Msg("Fee recipients updated")
		return nil
	})
}

// UpdateHealthFactor sets the target health factor (1e18 is neutral). OWNER only; zero is rejected.
func (v *Vault) UpdateHealthFactor(ctx context.Context, caller sdk.AccAddress, target sdkmath.Int) error {
	return v.run(ctx, "update_health_factor", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		prev := v.adapter.Target()
		if err := v.adapter.SetTarget(target); err != nil {
			return translate(err)
		}
		t.onRollback(func() { _ = v.adapter.SetTarget(prev) })

		t.emit(types.Event{
			Type: types.EventHealthFactorUpdated,
			Attributes: map[string]string{
				"previous": prev.String(),
				"target":   target.String(),
			},
		})
		v.logger.Info().Str("previous", prev.String()).Str("target", target.String()).Msg("Target health factor updated")
		return nil
	})
}

// UpdateAMMRouter replaces the swap venue. OWNER only.
func (v *Vault) UpdateAMMRouter(ctx context.Context, caller sdk.AccAddress, venue collab.SwapVenue) error {
	return v.run(ctx, "update_amm_router", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		if venue == nil || venue.Address().Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "swap venue")
		}
		prev := v.venue
		t.onRollback(func() { v.venue = prev })
		v.venue = venue
		v.emitCollaboratorUpdated(t, "amm_router", venue.Address().String())
		return nil
	})
}

// UpdateLendingPool replaces the lending market. OWNER only.
func (v *Vault) UpdateLendingPool(ctx context.Context, caller sdk.AccAddress, market collab.LendingMarket) error {
	return v.run(ctx, "update_lending_pool", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		if market == nil || market.Address().Empty() {
			return errorsmod.Wrap(ErrZeroAddress, "lending market")
		}
		prev := v.market
		t.onRollback(func() { v.market = prev })
		v.market = market
		v.emitCollaboratorUpdated(t, "lending_pool", market.Address().String())
		return nil
	})
}

// UpdatePriceFeed replaces the price oracle. OWNER only.
func (v *Vault) UpdatePriceFeed(ctx context.Context, caller sdk.AccAddress, oracle collab.PriceOracle) error {
	return v.run(ctx, "update_price_feed", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Owner); err != nil {
			return err
		}
		if oracle == nil {
			return errorsmod.Wrap(ErrZeroAddress, "price oracle")
		}
		prev := v.oracle
		t.onRollback(func() { v.oracle = prev })
		v.oracle = oracle
		v.emitCollaboratorUpdated(t, "price_feed", "")
		return nil
	})
}

func (v *Vault) emitCollaboratorUpdated(t *tx, name, address string) {
	t.emit(types.Event{
		Type:       types.EventCollaboratorUpdated,
		Attributes: map[string]string{"collaborator": name, "address": address},
	})
	v.logger.Info().Str("collaborator", name).Str("address", address).Msg("Collaborator updated")
}

// GrantRole grants role to account. ADMIN only.
func (v *Vault) GrantRole(ctx context.Context, caller, account sdk.AccAddress, role roles.Role) error {
	return v.run(ctx, "grant_role", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Admin); err != nil {
			return err
		}
		added, err := v.roles.Grant(account, role)
		if err != nil {
			return translate(err)
		}
		if !added {
			return nil
		}
		t.onRollback(func() { _, _ = v.roles.Revoke(account, role) })
		t.emit(types.Event{
			Type:       types.EventRoleGranted,
			Receiver:   account.String(),
			Attributes: map[string]string{"role": string(role)},
		})
		v.logger.Info().Str("account", account.String()).Str("role", string(role)).Msg("Role granted")
		return nil
	})
}

// RevokeRole revokes role from account. ADMIN only.
func (v *Vault) RevokeRole(ctx context.Context, caller, account sdk.AccAddress, role roles.Role) error {
	return v.run(ctx, "revoke_role", caller, func(ctx context.Context, t *tx) error {
		if _, err := v.authorize(caller, roles.Admin); err != nil {
			return err
		}
		holder := v.roles.StrategyHolder()
		revoked, err := v.roles.Revoke(account, role)
		if err != nil {
			return translate(err)
		}
		if !revoked {
			return nil
		}
		t.onRollback(func() {
			_, _ = v.roles.Grant(account, role)
			v.roles.SetStrategyHolder(holder)
		})
		t.emit(types.Event{
			Type:       types.EventRoleRevoked,
			Receiver:   account.String(),
			Attributes: map[string]string{"role": string(role)},
		})
		v.logger.Info().Str("account", account.String()).Str("role", string(role)).Msg("Role revoked")
		return nil
	})
}
