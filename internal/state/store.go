package state

import (
	"context"

	"github.com/elys-network/hfvault/internal/types"
)

// Store exposes the package functions over the global DB as a value, for callers that take
// their persistence as a dependency.
type Store struct{}

func (Store) RecentEvents(ctx context.Context, limit int) ([]types.Event, error) {
	return GetRecentEvents(ctx, limit)
}

func (Store) RecentSnapshots(ctx context.Context, limit int) ([]types.VaultSnapshot, error) {
	return GetRecentSnapshots(ctx, limit)
}

func (Store) EventStats(ctx context.Context) (*EventStats, error) {
	return GetEventStats(ctx)
}

func (Store) SaveSnapshot(ctx context.Context, snapshot types.VaultSnapshot) (int64, error) {
	return SaveVaultSnapshot(ctx, snapshot)
}

func (Store) NextCycle(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (Store) ActiveParameters(ctx context.Context, configName string) (*types.VaultParameters, error) {
	return LoadActiveVaultParameters(ctx, configName)
}

func (Store) SaveParameters(ctx context.Context, params types.VaultParameters) (int64, error) {
	return SaveVaultParameters(ctx, params, true)
}

func (Store) Ping() error {
	return TestDBConnection()
}
