package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/state"
	"github.com/elys-network/hfvault/internal/types"
	"github.com/elys-network/hfvault/internal/vault"
)

// Store persists what the operator observes.
type Store interface {
	SaveSnapshot(ctx context.Context, snapshot types.VaultSnapshot) (int64, error)
	NextCycle(ctx context.Context) (int, error)
	ActiveParameters(ctx context.Context, configName string) (*types.VaultParameters, error)
	SaveParameters(ctx context.Context, params types.VaultParameters) (int64, error)
}

// Operator periodically invokes the vault's rebalance hook on behalf of the owner, records a
// snapshot of the vault per cycle and versions owner configuration changes.
type Operator struct {
	logger     zerolog.Logger
	vault      *vault.Vault
	store      Store
	owner      sdk.AccAddress
	configName string
	clock      func() time.Time

	cycleCount int
}

// Config holds the configuration for creating a new Operator instance
type Config struct {
	Vault      *vault.Vault
	Store      Store
	Owner      sdk.AccAddress // Must hold OWNER on the vault
	ConfigName string
	Clock      func() time.Time
}

// New creates a new Operator.
func New(cfg Config) (*Operator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("operator configuration validation failed: %w", err)
	}

	op := &Operator{
		logger:     logger.GetForComponent("operator"),
		vault:      cfg.Vault,
		store:      cfg.Store,
		owner:      cfg.Owner,
		configName: cfg.ConfigName,
		clock:      cfg.Clock,
	}
	if op.clock == nil {
		op.clock = time.Now
	}

	op.logger.Info().
		Str("configName", op.configName).
		Str("owner", op.owner.String()).
		Msg("Operator created")
	return op, nil
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return errors.New("vault cannot be nil")
	}
	if cfg.Store == nil {
		return errors.New("store cannot be nil")
	}
	if cfg.Owner.Empty() {
		return errors.New("owner cannot be empty")
	}
	if cfg.ConfigName == "" {
		return errors.New("config name cannot be empty")
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is cancelled.
func (o *Operator) RunLoop(ctx context.Context, interval time.Duration) {
	o.logger.Info().Dur("interval", interval).Msg("Starting operator loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Operator loop stopped due to context cancellation")
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle performs one rebalance cycle and returns the snapshot it recorded. Failures of the
// individual steps are logged and recorded in the snapshot; the cycle itself never aborts.
func (o *Operator) RunCycle(ctx context.Context) types.VaultSnapshot {
	start := o.clock()
	o.cycleCount++
	cycleID := uuid.New().String()
	cycleLogger := o.logger.With().Str("cycle_id", cycleID).Logger()
	cycleLogger.Info().Int("cycle", o.cycleCount).Msg("--- Starting operator cycle ---")

	snapshot := types.VaultSnapshot{
		CycleNumber: o.nextCycleNumber(ctx, cycleLogger),
		CycleID:     cycleID,
		Timestamp:   start.UTC(),
	}

	if price, updatedAt, err := o.vault.LatestPrice(ctx); err != nil {
		cycleLogger.Warn().Err(err).Msg("Oracle price unavailable")
	} else {
		snapshot.OraclePrice = price.String()
		cycleLogger.Info().Str("price", snapshot.OraclePrice).Time("updatedAt", updatedAt).Msg("Oracle price read")
	}

	current, target, err := o.vault.Rebalance(ctx, o.owner)
	if err != nil {
		snapshot.RebalanceError = err.Error()
		cycleLogger.Error().Err(err).Msg("Rebalance failed")
		if hf, hfErr := o.vault.CurrentHealthFactor(ctx); hfErr == nil {
			snapshot.CurrentHealthFactor = hf.String()
		}
	} else {
		snapshot.CurrentHealthFactor = current.String()
		cycleLogger.Info().
			Str("current_health_factor", current.String()).
			Str("target_health_factor", target.String()).
			Msg("Rebalance completed")
	}

	summary, err := o.vault.Summary(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read vault summary, snapshot not saved")
		return snapshot
	}
	snapshot.TotalAssets = summary.TotalAssets
	snapshot.TotalShares = summary.TotalShares
	snapshot.SharePrice = summary.SharePrice
	snapshot.TargetHealthFactor = summary.TargetHealthFactor
	snapshot.EntryFeeBasisPoints = summary.Fees.EntryFeeBasisPoints
	snapshot.ExitFeeBasisPoints = summary.Fees.ExitFeeBasisPoints
	snapshot.Strategy = summary.Strategy

	if id, err := o.store.SaveSnapshot(ctx, snapshot); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save vault snapshot")
	} else {
		snapshot.SnapshotID = id
		cycleLogger.Info().Int64("snapshot_id", id).Msg("Vault snapshot saved")
	}

	if err := o.SyncParameters(ctx); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to sync vault parameters")
	}

	cycleLogger.Info().
		Str("total_assets", snapshot.TotalAssets.String()).
		Str("total_shares", snapshot.TotalShares.String()).
		Str("cycleDuration", o.clock().Sub(start).String()).
		Msg("Operator cycle completed")
	return snapshot
}

// nextCycleNumber draws from the persisted counter, falling back to the in-process count.
func (o *Operator) nextCycleNumber(ctx context.Context, cycleLogger zerolog.Logger) int {
	n, err := o.store.NextCycle(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to increment cycle number, using local count")
		return o.cycleCount
	}
	return n
}

// CurrentParameters reads the owner-controlled configuration from the vault.
func (o *Operator) CurrentParameters(ctx context.Context) (types.VaultParameters, error) {
	fees, err := o.vault.Fees(ctx)
	if err != nil {
		return types.VaultParameters{}, err
	}
	target, err := o.vault.HealthFactor(ctx)
	if err != nil {
		return types.VaultParameters{}, err
	}
	return types.VaultParameters{
		ConfigName:          o.configName,
		EntryFeeBasisPoints: fees.EntryFeeBasisPoints,
		ExitFeeBasisPoints:  fees.ExitFeeBasisPoints,
		EntryFeeRecipient:   fees.EntryFeeRecipient,
		ExitFeeRecipient:    fees.ExitFeeRecipient,
		TargetHealthFactor:  target,
	}, nil
}

// SyncParameters saves the vault configuration as a new active version when it differs from
// the persisted one.
func (o *Operator) SyncParameters(ctx context.Context) error {
	current, err := o.CurrentParameters(ctx)
	if err != nil {
		return err
	}

	active, err := o.store.ActiveParameters(ctx, o.configName)
	switch {
	case errors.Is(err, state.ErrNoActiveParameters):
		current.Version = 1
	case err != nil:
		return err
	case active.SameSettings(current):
		return nil
	default:
		current.Version = active.Version + 1
	}

	current.ActivatedAt = o.clock().UTC()
	id, err := o.store.SaveParameters(ctx, current)
	if err != nil {
		return err
	}
	o.logger.Info().
		Int64("params_id", id).
		Int("version", current.Version).
		Str("configName", o.configName).
		Msg("Vault parameters versioned")
	return nil
}

// LoadParameters returns the active parameters for configName, saving defaults as version 1
// when none exist yet.
func LoadParameters(ctx context.Context, store Store, configName string, defaults types.VaultParameters) (types.VaultParameters, error) {
	active, err := store.ActiveParameters(ctx, configName)
	if err == nil {
		return *active, nil
	}
	if !errors.Is(err, state.ErrNoActiveParameters) {
		return types.VaultParameters{}, err
	}

	defaults.ConfigName = configName
	defaults.Version = 1
	if defaults.ActivatedAt.IsZero() {
		defaults.ActivatedAt = time.Now().UTC()
	}
	id, err := store.SaveParameters(ctx, defaults)
	if err != nil {
		return types.VaultParameters{}, fmt.Errorf("failed to save default vault parameters: %w", err)
	}
	defaults.ParamsID = id
	return defaults, nil
}
