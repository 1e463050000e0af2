// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/hfvault/internal/types"
)

// SaveVaultSnapshot saves the state observed at the end of an operator cycle.
func SaveVaultSnapshot(ctx context.Context, snapshot types.VaultSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO vault_snapshots (
			cycle_number, cycle_id, snapshot_timestamp,
			total_assets, total_shares, share_price,
			target_health_factor, current_health_factor, oracle_price,
			entry_fee_bps, exit_fee_bps, strategy, rebalance_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING snapshot_id;`

	var snapshotID int64
	err := DB.QueryRowContext(ctx, query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp,
		numeric(snapshot.TotalAssets), numeric(snapshot.TotalShares), nullString(snapshot.SharePrice),
		numeric(snapshot.TargetHealthFactor), nullString(snapshot.CurrentHealthFactor), nullString(snapshot.OraclePrice),
		snapshot.EntryFeeBasisPoints, snapshot.ExitFeeBasisPoints, nullString(snapshot.Strategy), nullString(snapshot.RebalanceError),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("total_assets", snapshot.TotalAssets.String()).
		Msg("Vault snapshot saved to database")
	return snapshotID, nil
}

// GetRecentSnapshots retrieves the latest snapshots, newest first.
func GetRecentSnapshots(ctx context.Context, limit int) ([]types.VaultSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT
			snapshot_id, cycle_number, cycle_id, snapshot_timestamp,
			total_assets, total_shares, share_price,
			target_health_factor, current_health_factor, oracle_price,
			entry_fee_bps, exit_fee_bps, strategy, rebalance_error
		FROM vault_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.VaultSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan snapshot row")
			continue // Skip this row and continue with others
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(rows *sql.Rows) (types.VaultSnapshot, error) {
	var (
		s                                  types.VaultSnapshot
		totalAssets, totalShares, targetHF sql.NullString
		sharePrice, currentHF, oraclePrice sql.NullString
		strategy, rebalanceError           sql.NullString
	)
	err := rows.Scan(
		&s.SnapshotID, &s.CycleNumber, &s.CycleID, &s.Timestamp,
		&totalAssets, &totalShares, &sharePrice,
		&targetHF, &currentHF, &oraclePrice,
		&s.EntryFeeBasisPoints, &s.ExitFeeBasisPoints, &strategy, &rebalanceError,
	)
	if err != nil {
		return s, err
	}
	if s.TotalAssets, err = parseNumeric(totalAssets); err != nil {
		return s, err
	}
	if s.TotalShares, err = parseNumeric(totalShares); err != nil {
		return s, err
	}
	if s.TargetHealthFactor, err = parseNumeric(targetHF); err != nil {
		return s, err
	}
	s.SharePrice = sharePrice.String
	s.CurrentHealthFactor = currentHF.String
	s.OraclePrice = oraclePrice.String
	s.Strategy = strategy.String
	s.RebalanceError = rebalanceError.String
	return s, nil
}
