/*

This file contains the vault: a pooled-custody account issuing fungible shares against a single
base denom held on an external asset ledger.

Shares live in the vault's own ledger (ledger.go). Pricing is done by the conversion engine
(engine.go), privileged capital actions by the gateway (gateway.go), owner configuration by
admin.go. Every mutating entry point runs through the transaction guard (guard.go).

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/healthfactor"
	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/roles"
	"github.com/elys-network/hfvault/internal/types"
)

// EventSink receives the events of committed transactions.
type EventSink interface {
	Publish(ctx context.Context, ev types.Event) error
}

type discardSink struct{}

func (discardSink) Publish(context.Context, types.Event) error { return nil }

// DefaultReentryWait is how long a caller may queue behind a single collaborator call before
// it is rejected as re-entrant.
const DefaultReentryWait = 2 * time.Second

// Config holds everything needed to create a vault.
type Config struct {
	Address   sdk.AccAddress // The vault's own account on the asset ledger
	BaseDenom string
	Owner     sdk.AccAddress
	Admin     sdk.AccAddress // Defaults to Owner
	Strategy  sdk.AccAddress // Initial STRATEGY holder, optional

	Ledger       collab.AssetLedger
	Venue        collab.SwapVenue
	Market       collab.LendingMarket
	Oracle       collab.PriceOracle
	StrategyHook collab.Strategy // Invoked by Rebalance, optional
	Sink         EventSink       // Optional

	EntryFeeBasisPoints uint64
	ExitFeeBasisPoints  uint64
	EntryFeeRecipient   sdk.AccAddress // Defaults to the vault
	ExitFeeRecipient    sdk.AccAddress // Defaults to the vault
	TargetHealthFactor  sdkmath.Int    // Defaults to neutral (1e18)
	MaxPriceAge         time.Duration  // Zero disables the staleness check
	ReentryWait         time.Duration  // Defaults to DefaultReentryWait

	Clock func() time.Time
}

// Vault is safe for concurrent use; operations are serialized.
type Vault struct {
	logger      zerolog.Logger
	address     sdk.AccAddress
	baseDenom   string
	sem         chan struct{}
	outbound    atomic.Uint64 // Id of the collaborator call in flight, zero when none
	calls       atomic.Uint64
	reentryWait time.Duration
	clock       func() time.Time

	ledger       collab.AssetLedger
	venue        collab.SwapVenue
	market       collab.LendingMarket
	oracle       collab.PriceOracle
	strategyHook collab.Strategy
	sink         EventSink

	roles   *roles.Registry
	adapter *healthfactor.Adapter

	entryFeeBasisPoints uint64
	exitFeeBasisPoints  uint64
	entryFeeRecipient   sdk.AccAddress
	exitFeeRecipient    sdk.AccAddress
	maxPriceAge         time.Duration

	shares *shareLedger
}

// New validates cfg and creates the vault.
func New(cfg Config) (*Vault, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}

	adapter := healthfactor.Neutral()
	if !cfg.TargetHealthFactor.IsNil() {
		if err := adapter.SetTarget(cfg.TargetHealthFactor); err != nil {
			return nil, translate(err)
		}
	}

	registry := roles.NewRegistry()
	admin := cfg.Admin
	if admin.Empty() {
		admin = cfg.Owner
	}
	if _, err := registry.Grant(admin, roles.Admin); err != nil {
		return nil, translate(err)
	}
	if _, err := registry.Grant(cfg.Owner, roles.Owner); err != nil {
		return nil, translate(err)
	}
	if !cfg.Strategy.Empty() {
		if _, err := registry.RotateStrategy(cfg.Strategy); err != nil {
			return nil, translate(err)
		}
	}

	v := &Vault{
		logger:              logger.GetForComponent("vault"),
		address:             cfg.Address,
		baseDenom:           cfg.BaseDenom,
		sem:                 make(chan struct{}, 1),
		clock:               cfg.Clock,
		ledger:              cfg.Ledger,
		venue:               cfg.Venue,
		market:              cfg.Market,
		oracle:              cfg.Oracle,
		strategyHook:        cfg.StrategyHook,
		sink:                cfg.Sink,
		roles:               registry,
		adapter:             adapter,
		entryFeeBasisPoints: cfg.EntryFeeBasisPoints,
		exitFeeBasisPoints:  cfg.ExitFeeBasisPoints,
		entryFeeRecipient:   cfg.EntryFeeRecipient,
		exitFeeRecipient:    cfg.ExitFeeRecipient,
		maxPriceAge:         cfg.MaxPriceAge,
		reentryWait:         cfg.ReentryWait,
		shares:              newShareLedger(),
	}
	if v.clock == nil {
		v.clock = time.Now
	}
	if v.sink == nil {
		v.sink = discardSink{}
	}
	if v.reentryWait == 0 {
		v.reentryWait = DefaultReentryWait
	}
	if v.entryFeeRecipient.Empty() {
		v.entryFeeRecipient = cfg.Address
	}
	if v.exitFeeRecipient.Empty() {
		v.exitFeeRecipient = cfg.Address
	}

	v.logger.Info().
		Str("address", v.address.String()).
		Str("base_denom", v.baseDenom).
		Str("owner", cfg.Owner.String()).
		Uint64("entry_fee_bps", v.entryFeeBasisPoints).
		Uint64("exit_fee_bps", v.exitFeeBasisPoints).
		Str("target_health_factor", v.adapter.Target().String()).
		Msg("Vault created")
	return v, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Address.Empty() {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "vault address"))
	}
	if cfg.Owner.Empty() {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "owner"))
	}
	if err := sdk.ValidateDenom(cfg.BaseDenom); err != nil {
		errs = append(errs, fmt.Errorf("base denom: %w", err))
	}
	if cfg.Ledger == nil {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "asset ledger"))
	}
	if cfg.Venue == nil || cfg.Venue.Address().Empty() {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "swap venue"))
	}
	if cfg.Market == nil || cfg.Market.Address().Empty() {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "lending market"))
	}
	if cfg.Oracle == nil {
		errs = append(errs, errorsmod.Wrap(ErrZeroAddress, "price oracle"))
	}
	for _, bp := range []uint64{cfg.EntryFeeBasisPoints, cfg.ExitFeeBasisPoints} {
		if err := fees.ValidateBasisPoints(bp); err != nil {
			errs = append(errs, translate(err))
		}
	}
	if cfg.MaxPriceAge < 0 {
		errs = append(errs, errors.New("max price age cannot be negative"))
	}
	if cfg.ReentryWait < 0 {
		errs = append(errs, errors.New("reentry wait cannot be negative"))
	}
	return errors.Join(errs...)
}

// Address returns the vault's account.
func (v *Vault) Address() sdk.AccAddress {
	return v.address
}

// BaseDenom returns the denom shares are issued against.
func (v *Vault) BaseDenom() string {
	return v.baseDenom
}

// TotalAssets returns the base-denom balance held by the vault plus the net value of its
// lending position when the market can report it.
func (v *Vault) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	var total sdkmath.Int
	err := v.view(ctx, func(ctx context.Context) error {
		var err error
		total, err = v.totalAssets(ctx)
		return err
	})
	return total, err
}

func (v *Vault) totalAssets(ctx context.Context) (sdkmath.Int, error) {
	var balance sdkmath.Int
	if err := v.callOut("asset ledger balance", func() (err error) {
		balance, err = v.ledger.BalanceOf(ctx, v.address, v.baseDenom)
		return err
	}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := balance
	if valuer, ok := v.market.(collab.PositionValuer); ok {
		var position sdkmath.Int
		if err := v.callOut("lending position value", func() (err error) {
			position, err = valuer.PositionValue(ctx, v.address, v.baseDenom)
			return err
		}); err != nil {
			return sdkmath.ZeroInt(), err
		}
		var err error
		if total, err = total.SafeAdd(position); err != nil {
			return sdkmath.ZeroInt(), errorsmod.Wrap(ErrAmountOverflow, "total assets")
		}
	}
	if total.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return total, nil
}

// TotalShares returns the outstanding share supply.
func (v *Vault) TotalShares(ctx context.Context) (sdkmath.Int, error) {
	var supply sdkmath.Int
	err := v.view(ctx, func(context.Context) error {
		supply = v.shares.supply
		return nil
	})
	return supply, err
}

// SharePrice returns total assets per share scaled by 1e18. It fails with ErrNoSharesMinted
// while the supply is zero.
func (v *Vault) SharePrice(ctx context.Context) (sdkmath.Int, error) {
	var price sdkmath.Int
	err := v.view(ctx, func(ctx context.Context) error {
		if v.shares.supply.IsZero() {
			return ErrNoSharesMinted
		}
		assets, err := v.totalAssets(ctx)
		if err != nil {
			return err
		}
		p := new(big.Int).Mul(assets.BigInt(), healthfactor.Scale.BigInt())
		p.Quo(p, v.shares.supply.BigInt())
		if p.BitLen() > sdkmath.MaxBitLen {
			return errorsmod.Wrap(ErrAmountOverflow, "share price")
		}
		price = sdkmath.NewIntFromBigInt(p)
		return nil
	})
	return price, err
}

// LatestPrice queries the oracle and rejects prices older than the configured maximum age.
func (v *Vault) LatestPrice(ctx context.Context) (sdkmath.Int, time.Time, error) {
	var (
		price     sdkmath.Int
		updatedAt time.Time
	)
	err := v.view(ctx, func(ctx context.Context) error {
		if err := v.callOut("price oracle", func() (err error) {
			price, updatedAt, err = v.oracle.LatestPrice(ctx)
			return err
		}); err != nil {
			return err
		}
		if v.maxPriceAge > 0 {
			if age := v.clock().Sub(updatedAt); age > v.maxPriceAge {
				return errorsmod.Wrapf(ErrStalePrice, "price is %s old, max %s", age.Truncate(time.Second), v.maxPriceAge)
			}
		}
		return nil
	})
	return price, updatedAt, err
}

// HealthFactor returns the target health factor.
func (v *Vault) HealthFactor(ctx context.Context) (sdkmath.Int, error) {
	var hf sdkmath.Int
	err := v.view(ctx, func(context.Context) error {
		hf = v.adapter.Target()
		return nil
	})
	return hf, err
}

// CurrentHealthFactor returns the market-reported health factor of the vault's position.
// Markets that cannot report it yield the target.
func (v *Vault) CurrentHealthFactor(ctx context.Context) (sdkmath.Int, error) {
	var hf sdkmath.Int
	err := v.view(ctx, func(ctx context.Context) error {
		var err error
		hf, err = v.currentHealthFactor(ctx)
		return err
	})
	return hf, err
}

func (v *Vault) currentHealthFactor(ctx context.Context) (sdkmath.Int, error) {
	reporter, ok := v.market.(collab.HealthReporter)
	if !ok {
		return v.adapter.Target(), nil
	}
	var hf sdkmath.Int
	if err := v.callOut("lending health factor", func() (err error) {
		hf, err = reporter.HealthFactor(ctx, v.address)
		return err
	}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return hf, nil
}

// Fees returns the current fee configuration.
func (v *Vault) Fees(ctx context.Context) (types.FeeConfig, error) {
	var cfg types.FeeConfig
	err := v.view(ctx, func(context.Context) error {
		cfg = v.feeConfig()
		return nil
	})
	return cfg, err
}

func (v *Vault) feeConfig() types.FeeConfig {
	return types.FeeConfig{
		EntryFeeBasisPoints: v.entryFeeBasisPoints,
		ExitFeeBasisPoints:  v.exitFeeBasisPoints,
		EntryFeeRecipient:   v.entryFeeRecipient.String(),
		ExitFeeRecipient:    v.exitFeeRecipient.String(),
	}
}

// HasRole reports whether account holds role.
func (v *Vault) HasRole(account sdk.AccAddress, role roles.Role) bool {
	return v.roles.Has(account, role)
}

// Strategy returns the current rotation-granted STRATEGY holder.
func (v *Vault) Strategy() sdk.AccAddress {
	return v.roles.StrategyHolder()
}

// Summary returns a consistent read of the vault's headline numbers.
func (v *Vault) Summary(ctx context.Context) (types.VaultSummary, error) {
	var summary types.VaultSummary
	err := v.view(ctx, func(ctx context.Context) error {
		assets, err := v.totalAssets(ctx)
		if err != nil {
			return err
		}
		summary = types.VaultSummary{
			Address:            v.address.String(),
			BaseDenom:          v.baseDenom,
			TotalAssets:        assets,
			TotalShares:        v.shares.supply,
			TargetHealthFactor: v.adapter.Target(),
			Fees:               v.feeConfig(),
			Strategy:           v.roles.StrategyHolder().String(),
		}
		if !v.shares.supply.IsZero() {
			p := new(big.Int).Mul(assets.BigInt(), healthfactor.Scale.BigInt())
			summary.SharePrice = p.Quo(p, v.shares.supply.BigInt()).String()
		}
		return nil
	})
	return summary, err
}
