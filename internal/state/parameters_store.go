// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/hfvault/internal/types"
)

// ErrNoActiveParameters is returned when no active parameter set exists for a config name.
var ErrNoActiveParameters = errors.New("no active vault parameters")

// SaveVaultParameters saves a new version of the vault parameters. When makeActive is set the
// previously active version of the same config is deactivated in the same transaction.
func SaveVaultParameters(ctx context.Context, params types.VaultParameters, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if params.TargetHealthFactor.IsNil() {
		return 0, fmt.Errorf("target health factor is required")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE vault_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		if _, err = tx.ExecContext(ctx, stmtDeactivate, params.ConfigName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", params.ConfigName, err)
		}
	}

	activatedAt := params.ActivatedAt
	if activatedAt.IsZero() {
		activatedAt = time.Now().UTC()
	}

	stmt := `
		INSERT INTO vault_parameters (
			version, config_name, is_active, activated_at,
			entry_fee_bps, exit_fee_bps, entry_fee_recipient, exit_fee_recipient,
			target_health_factor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING params_id;`

	err = tx.QueryRowContext(ctx, stmt,
		params.Version, params.ConfigName, makeActive, activatedAt,
		params.EntryFeeBasisPoints, params.ExitFeeBasisPoints, params.EntryFeeRecipient, params.ExitFeeRecipient,
		params.TargetHealthFactor.String(),
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", params.Version).
		Str("config", params.ConfigName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved vault parameters")
	return paramsID, nil
}

// LoadActiveVaultParameters loads the currently active parameters for configName. It returns
// ErrNoActiveParameters when none were saved yet.
func LoadActiveVaultParameters(ctx context.Context, configName string) (*types.VaultParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			params_id, version, config_name, activated_at,
			entry_fee_bps, exit_fee_bps, entry_fee_recipient, exit_fee_recipient,
			target_health_factor
		FROM vault_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	p := &types.VaultParameters{}
	var targetHF sql.NullString
	err := DB.QueryRowContext(ctx, query, configName).Scan(
		&p.ParamsID, &p.Version, &p.ConfigName, &p.ActivatedAt,
		&p.EntryFeeBasisPoints, &p.ExitFeeBasisPoints, &p.EntryFeeRecipient, &p.ExitFeeRecipient,
		&targetHF,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for config '%s'", ErrNoActiveParameters, configName)
		}
		return nil, fmt.Errorf("failed to scan active vault parameters for config '%s': %w", configName, err)
	}
	if p.TargetHealthFactor, err = parseNumeric(targetHF); err != nil {
		return nil, fmt.Errorf("active vault parameters for config '%s': %w", configName, err)
	}

	log.Info().Str("config", configName).Int("version", p.Version).Msg("Loaded active vault parameters")
	return p, nil
}
