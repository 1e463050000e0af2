package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hfvault/internal/types"
)

// EventStats aggregates the recorded event history.
type EventStats struct {
	CountsByType  map[types.EventType]int `json:"counts_by_type"`
	TotalFees     sdkmath.Int             `json:"total_fees"`
	TotalDeposits sdkmath.Int             `json:"total_deposits"`
	TotalWithdraw sdkmath.Int             `json:"total_withdrawals"`
	LastEventAt   *time.Time              `json:"last_event_at,omitempty"`
	TotalCycles   int                     `json:"total_cycles"`
}

// GetEventStats summarizes the vault_events table and the rebalance counter.
func GetEventStats(ctx context.Context) (*EventStats, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stats := &EventStats{
		CountsByType:  make(map[types.EventType]int),
		TotalFees:     sdkmath.ZeroInt(),
		TotalDeposits: sdkmath.ZeroInt(),
		TotalWithdraw: sdkmath.ZeroInt(),
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM vault_events
		GROUP BY event_type;`)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query event counts")
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		stats.CountsByType[types.EventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}

	var (
		fees, deposits, withdrawals sql.NullString
		lastEventAt                 sql.NullTime
	)
	err = DB.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(fee) FILTER (WHERE event_type = $1), 0)::TEXT,
			COALESCE(SUM(assets) FILTER (WHERE event_type = $2), 0)::TEXT,
			COALESCE(SUM(assets) FILTER (WHERE event_type = $3), 0)::TEXT,
			MAX(event_timestamp)
		FROM vault_events;`,
		string(types.EventFeeCollected), string(types.EventDeposit), string(types.EventWithdraw),
	).Scan(&fees, &deposits, &withdrawals, &lastEventAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query event totals: %w", err)
	}
	for _, field := range []struct {
		src sql.NullString
		dst *sdkmath.Int
	}{{fees, &stats.TotalFees}, {deposits, &stats.TotalDeposits}, {withdrawals, &stats.TotalWithdraw}} {
		v, err := parseNumeric(field.src)
		if err != nil {
			return nil, err
		}
		if !v.IsNil() {
			*field.dst = v
		}
	}
	if lastEventAt.Valid {
		stats.LastEventAt = &lastEventAt.Time
	}

	if stats.TotalCycles, err = GetCurrentCycleNumber(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}
