package state

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hfvault/internal/types"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	previous := DB
	DB = db
	t.Cleanup(func() {
		DB = previous
		db.Close()
	})
	return mock
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestFunctionsRequireDatabase(t *testing.T) {
	previous := DB
	DB = nil
	t.Cleanup(func() { DB = previous })
	ctx := context.Background()

	require.Error(t, EnsureSchema())
	require.Error(t, TestDBConnection())
	require.Error(t, NewEventRecorder().Publish(ctx, types.Event{}))
	_, err := GetRecentEvents(ctx, 10)
	require.Error(t, err)
	_, err = SaveVaultSnapshot(ctx, types.VaultSnapshot{})
	require.Error(t, err)
	_, err = IncrementCycleNumber(ctx)
	require.Error(t, err)
	_, err = LoadActiveVaultParameters(ctx, "default")
	require.Error(t, err)
	_, err = GetEventStats(ctx)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS vault_events")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRecorderPublish(t *testing.T) {
	mock := withMockDB(t)
	ev := types.Event{
		ID:         "8f0c7d0e-3f0a-4c55-9f40-0f4f6a1d2b11",
		TxID:       "c1f4d6a2-0d5e-4b8e-8a57-3a9a1f5c2e10",
		Type:       types.EventActionExecuted,
		Caller:     "elys1caller",
		Assets:     sdkmath.NewInt(100),
		Attributes: map[string]string{"path": "uusdc,uatom"},
		Timestamp:  testTime,
	}
	mock.ExpectExec(q("INSERT INTO vault_events")).
		WithArgs(ev.ID, ev.TxID, "ACTION_EXECUTED", "elys1caller", nil, nil,
			"100", nil, nil, pq.Array([]string{"uusdc", "uatom"}), sqlmock.AnyArg(), testTime).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewEventRecorder().Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRecorderPublishFailure(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectExec(q("INSERT INTO vault_events")).WillReturnError(errors.New("connection reset"))

	err := NewEventRecorder().Publish(context.Background(), types.Event{ID: "e1", Type: types.EventDeposit})
	require.ErrorContains(t, err, "connection reset")
}

func TestGetRecentEventsDecodesPayload(t *testing.T) {
	mock := withMockDB(t)
	payload, err := json.Marshal(types.Event{
		ID:     "e1",
		Type:   types.EventDeposit,
		Assets: sdkmath.NewInt(1_000_000),
		Shares: sdkmath.NewInt(990_099),
	})
	require.NoError(t, err)
	mock.ExpectQuery(q("SELECT payload FROM vault_events")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	events, err := GetRecentEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, types.EventDeposit, events[0].Type)
	require.Equal(t, "990099", events[0].Shares.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveVaultSnapshot(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("INSERT INTO vault_snapshots")).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}).AddRow(7))

	id, err := SaveVaultSnapshot(context.Background(), types.VaultSnapshot{
		CycleNumber:        3,
		CycleID:            "cycle",
		Timestamp:          testTime,
		TotalAssets:        sdkmath.NewInt(1000),
		TotalShares:        sdkmath.NewInt(990),
		TargetHealthFactor: sdkmath.NewInt(1_000_000_000_000_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentSnapshotsParsesNumerics(t *testing.T) {
	mock := withMockDB(t)
	columns := []string{
		"snapshot_id", "cycle_number", "cycle_id", "snapshot_timestamp",
		"total_assets", "total_shares", "share_price",
		"target_health_factor", "current_health_factor", "oracle_price",
		"entry_fee_bps", "exit_fee_bps", "strategy", "rebalance_error",
	}
	mock.ExpectQuery(q("FROM vault_snapshots ORDER BY snapshot_timestamp DESC")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(1), int64(3), "cycle", testTime,
			"1000", "990", nil,
			"2000000000000000000", nil, "1000000",
			int64(100), int64(50), "elys1strategy", "strategy execute failed",
		))

	snapshots, err := GetRecentSnapshots(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	s := snapshots[0]
	require.Equal(t, "1000", s.TotalAssets.String())
	require.Equal(t, "990", s.TotalShares.String())
	require.Equal(t, "2000000000000000000", s.TargetHealthFactor.String())
	require.Empty(t, s.SharePrice)
	require.Equal(t, "1000000", s.OraclePrice)
	require.Equal(t, uint64(100), s.EntryFeeBasisPoints)
	require.Equal(t, "strategy execute failed", s.RebalanceError)
}

func TestSaveVaultParametersDeactivatesPrevious(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE vault_parameters SET is_active = FALSE")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("INSERT INTO vault_parameters")).
		WillReturnRows(sqlmock.NewRows([]string{"params_id"}).AddRow(3))
	mock.ExpectCommit()

	id, err := SaveVaultParameters(context.Background(), types.VaultParameters{
		Version:             2,
		ConfigName:          "default",
		EntryFeeBasisPoints: 100,
		TargetHealthFactor:  sdkmath.NewInt(1_500_000_000_000_000_000),
		ActivatedAt:         testTime,
	}, true)
	require.NoError(t, err)
	require.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveVaultParametersRollsBackOnInsertFailure(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO vault_parameters")).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := SaveVaultParameters(context.Background(), types.VaultParameters{
		Version:            1,
		ConfigName:         "default",
		TargetHealthFactor: sdkmath.NewInt(1),
	}, false)
	require.ErrorContains(t, err, "duplicate key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadActiveVaultParameters(t *testing.T) {
	mock := withMockDB(t)
	columns := []string{
		"params_id", "version", "config_name", "activated_at",
		"entry_fee_bps", "exit_fee_bps", "entry_fee_recipient", "exit_fee_recipient",
		"target_health_factor",
	}
	mock.ExpectQuery(q("FROM vault_parameters WHERE config_name = $1 AND is_active = TRUE")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(3), int64(2), "default", testTime,
			int64(100), int64(50), "elys1entry", "elys1exit", "1500000000000000000",
		))

	p, err := LoadActiveVaultParameters(context.Background(), "default")
	require.NoError(t, err)
	require.Equal(t, 2, p.Version)
	require.Equal(t, uint64(50), p.ExitFeeBasisPoints)
	require.Equal(t, "1500000000000000000", p.TargetHealthFactor.String())
}

func TestLoadActiveVaultParametersMissing(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("FROM vault_parameters")).
		WillReturnRows(sqlmock.NewRows([]string{"params_id"}))

	_, err := LoadActiveVaultParameters(context.Background(), "default")
	require.ErrorIs(t, err, ErrNoActiveParameters)
}

func TestCycleCounter(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("UPDATE rebalance_counter SET current_cycle = current_cycle + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(5))
	mock.ExpectExec(q("UPDATE rebalance_counter SET current_cycle = $1")).
		WithArgs(0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	n, err := IncrementCycleNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, ResetCycleNumber(ctx, 0))
	require.Error(t, ResetCycleNumber(ctx, -1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventStats(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("SELECT event_type, COUNT(*) FROM vault_events GROUP BY event_type")).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("DEPOSIT", int64(2)).
			AddRow("FEE_COLLECTED", int64(1)))
	mock.ExpectQuery(q("COALESCE(SUM(fee)")).
		WithArgs("FEE_COLLECTED", "DEPOSIT", "WITHDRAW").
		WillReturnRows(sqlmock.NewRows([]string{"fees", "deposits", "withdrawals", "last"}).
			AddRow("30", "2000", "0", testTime))
	mock.ExpectQuery(q("SELECT current_cycle FROM rebalance_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(4))

	stats, err := GetEventStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.CountsByType[types.EventDeposit])
	require.Equal(t, "30", stats.TotalFees.String())
	require.Equal(t, "2000", stats.TotalDeposits.String())
	require.True(t, stats.TotalWithdraw.IsZero())
	require.Equal(t, testTime, *stats.LastEventAt)
	require.Equal(t, 4, stats.TotalCycles)
	require.NoError(t, mock.ExpectationsWereMet())
}
