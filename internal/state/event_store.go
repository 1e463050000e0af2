// ./internal/state/event_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/types"
)

// EventRecorder persists committed vault events. It satisfies the vault's event sink.
type EventRecorder struct {
	logger zerolog.Logger
}

// NewEventRecorder creates a recorder writing to the global DB.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{logger: logger.GetForComponent("event_recorder")}
}

// Publish inserts ev into vault_events. The full event is kept as the JSONB payload.
func (r *EventRecorder) Publish(ctx context.Context, ev types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO vault_events (
			event_id, tx_id, event_type, caller, receiver, owner,
			assets, shares, fee, swap_path, payload, event_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err = DB.ExecContext(ctx, query,
		ev.ID, ev.TxID, string(ev.Type), ev.Caller, nullString(ev.Receiver), nullString(ev.Owner),
		numeric(ev.Assets), numeric(ev.Shares), numeric(ev.Fee),
		pq.Array(swapPath(ev)), payload, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save vault event %s: %w", ev.ID, err)
	}

	r.logger.Debug().
		Str("event_id", ev.ID).
		Str("tx_id", ev.TxID).
		Str("event_type", string(ev.Type)).
		Msg("Vault event recorded")
	return nil
}

// GetRecentEvents returns the most recent events, newest first.
func GetRecentEvents(ctx context.Context, limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT payload
		FROM vault_events
		ORDER BY event_timestamp DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		var ev types.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// swapPath extracts the path recorded by swap actions.
func swapPath(ev types.Event) []string {
	path := ev.Attributes["path"]
	if path == "" {
		return nil
	}
	return strings.Split(path, ",")
}

func numeric(v sdkmath.Int) any {
	if v.IsNil() {
		return nil
	}
	return v.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseNumeric converts a NUMERIC column back into an Int. NULL yields a nil Int.
func parseNumeric(s sql.NullString) (sdkmath.Int, error) {
	if !s.Valid {
		return sdkmath.Int{}, nil
	}
	v, ok := sdkmath.NewIntFromString(s.String)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric value %q", s.String)
	}
	return v, nil
}
