package operator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/memory"
	"github.com/elys-network/hfvault/internal/state"
	"github.com/elys-network/hfvault/internal/types"
	"github.com/elys-network/hfvault/internal/vault"
)

const usdc = "uusdc"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func addr(name string) sdk.AccAddress {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b)
}

type fakeStore struct {
	mu        sync.Mutex
	cycle     int
	cycleErr  error
	snapshots []types.VaultSnapshot
	params    []types.VaultParameters
}

func (s *fakeStore) SaveSnapshot(_ context.Context, snapshot types.VaultSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return int64(len(s.snapshots)), nil
}

func (s *fakeStore) NextCycle(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycleErr != nil {
		return 0, s.cycleErr
	}
	s.cycle++
	return s.cycle, nil
}

func (s *fakeStore) ActiveParameters(_ context.Context, configName string) (*types.VaultParameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.params) - 1; i >= 0; i-- {
		if s.params[i].ConfigName == configName {
			p := s.params[i]
			return &p, nil
		}
	}
	return nil, state.ErrNoActiveParameters
}

func (s *fakeStore) SaveParameters(_ context.Context, params types.VaultParameters) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	params.ParamsID = int64(len(s.params) + 1)
	s.params = append(s.params, params)
	return params.ParamsID, nil
}

type fixture struct {
	ctx   context.Context
	bank  *memory.Bank
	store *fakeStore
	vault *vault.Vault
	op    *Operator
	owner sdk.AccAddress
}

func newFixture(t *testing.T, hook collab.Strategy) *fixture {
	t.Helper()
	bank := memory.NewBank()
	pool, err := memory.NewPool(memory.ModuleAddress("amm"), bank, 30)
	require.NoError(t, err)
	lending, err := memory.NewLendingPool(memory.ModuleAddress("lending"), bank, 8_000)
	require.NoError(t, err)

	f := &fixture{ctx: context.Background(), bank: bank, store: &fakeStore{}, owner: addr("owner")}
	f.vault, err = vault.New(vault.Config{
		Address:      memory.ModuleAddress(vault.ModuleName),
		BaseDenom:    usdc,
		Owner:        f.owner,
		Ledger:       bank,
		Venue:        pool,
		Market:       lending,
		Oracle:       memory.NewFixedOracle(sdkmath.NewInt(2_000_000), testNow),
		StrategyHook: hook,
		Clock:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	f.op, err = New(Config{
		Vault:      f.vault,
		Store:      f.store,
		Owner:      f.owner,
		ConfigName: "default",
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return f
}

func TestNewValidatesConfig(t *testing.T) {
	f := newFixture(t, nil)

	testCases := []struct {
		name string
		cfg  Config
	}{
		{"no vault", Config{Store: f.store, Owner: f.owner, ConfigName: "default"}},
		{"no store", Config{Vault: f.vault, Owner: f.owner, ConfigName: "default"}},
		{"no owner", Config{Vault: f.vault, Store: f.store, ConfigName: "default"}},
		{"no config name", Config{Vault: f.vault, Store: f.store, Owner: f.owner}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			require.Error(t, err)
		})
	}
}

func TestRunCycleRecordsSnapshot(t *testing.T) {
	hook := memory.NewStaticStrategy(nil)
	f := newFixture(t, hook)

	depositor := addr("alice")
	require.NoError(t, f.bank.Mint(depositor, usdc, sdkmath.NewInt(500)))
	require.NoError(t, f.bank.Approve(f.ctx, depositor, f.vault.Address(), usdc, sdkmath.NewInt(500)))
	_, err := f.vault.Deposit(f.ctx, depositor, sdkmath.NewInt(500), depositor)
	require.NoError(t, err)

	snapshot := f.op.RunCycle(f.ctx)

	require.Equal(t, 1, snapshot.CycleNumber)
	require.NotEmpty(t, snapshot.CycleID)
	require.Equal(t, int64(1), snapshot.SnapshotID)
	require.Equal(t, "2000000", snapshot.OraclePrice)
	require.Equal(t, "500", snapshot.TotalAssets.String())
	require.Equal(t, "500", snapshot.TotalShares.String())
	require.Equal(t, "1000000000000000000", snapshot.TargetHealthFactor.String())
	require.Empty(t, snapshot.RebalanceError)
	require.NotEmpty(t, snapshot.CurrentHealthFactor)
	require.Len(t, hook.Calls(), 1)
	require.Len(t, f.store.snapshots, 1)

	// The first cycle also versions the configuration.
	require.Len(t, f.store.params, 1)
	require.Equal(t, 1, f.store.params[0].Version)
}

func TestRunCycleRecordsRebalanceFailure(t *testing.T) {
	f := newFixture(t, memory.NewStaticStrategy(errors.New("keeper offline")))

	snapshot := f.op.RunCycle(f.ctx)
	require.Contains(t, snapshot.RebalanceError, "keeper offline")
	require.NotEmpty(t, snapshot.CurrentHealthFactor)
	require.Len(t, f.store.snapshots, 1)
}

func TestRunCycleFallsBackToLocalCount(t *testing.T) {
	f := newFixture(t, nil)
	f.store.cycleErr = errors.New("database down")

	require.Equal(t, 1, f.op.RunCycle(f.ctx).CycleNumber)
	require.Equal(t, 2, f.op.RunCycle(f.ctx).CycleNumber)
}

func TestSyncParametersVersionsChanges(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.op.SyncParameters(f.ctx))
	require.NoError(t, f.op.SyncParameters(f.ctx))
	require.Len(t, f.store.params, 1, "unchanged configuration is not versioned again")

	require.NoError(t, f.vault.UpdateFeeBasisPoints(f.ctx, f.owner, 100, 50))
	require.NoError(t, f.op.SyncParameters(f.ctx))
	require.Len(t, f.store.params, 2)

	latest := f.store.params[1]
	require.Equal(t, 2, latest.Version)
	require.Equal(t, uint64(100), latest.EntryFeeBasisPoints)
	require.Equal(t, uint64(50), latest.ExitFeeBasisPoints)
	require.Equal(t, testNow, latest.ActivatedAt)
}

func TestLoadParameters(t *testing.T) {
	store := &fakeStore{}
	defaults := types.VaultParameters{
		EntryFeeBasisPoints: 30,
		TargetHealthFactor:  sdkmath.NewInt(1_000_000_000_000_000_000),
	}

	params, err := LoadParameters(context.Background(), store, "default", defaults)
	require.NoError(t, err)
	require.Equal(t, 1, params.Version)
	require.Equal(t, int64(1), params.ParamsID)
	require.Equal(t, "default", params.ConfigName)
	require.Len(t, store.params, 1)

	store.params[0].EntryFeeBasisPoints = 75
	params, err = LoadParameters(context.Background(), store, "default", defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(75), params.EntryFeeBasisPoints)
	require.Len(t, store.params, 1)
}
