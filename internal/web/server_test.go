package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

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
	events    []types.Event
	snapshots []types.VaultSnapshot
	stats     *state.EventStats
	err       error
	lastLimit int
}

func (s *fakeStore) RecentEvents(_ context.Context, limit int) ([]types.Event, error) {
	s.lastLimit = limit
	return s.events, s.err
}

func (s *fakeStore) RecentSnapshots(_ context.Context, limit int) ([]types.VaultSnapshot, error) {
	s.lastLimit = limit
	return s.snapshots, s.err
}

func (s *fakeStore) EventStats(context.Context) (*state.EventStats, error) {
	return s.stats, s.err
}

func (s *fakeStore) Ping() error {
	return s.err
}

type fixture struct {
	bank   *memory.Bank
	oracle *memory.FixedOracle
	vault  *vault.Vault
	server *WebServer
	owner  sdk.AccAddress
	alice  sdk.AccAddress
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	bank := memory.NewBank()
	pool, err := memory.NewPool(memory.ModuleAddress("amm"), bank, 30)
	require.NoError(t, err)
	lending, err := memory.NewLendingPool(memory.ModuleAddress("lending"), bank, 8_000)
	require.NoError(t, err)

	f := &fixture{
		bank:   bank,
		oracle: memory.NewFixedOracle(sdkmath.NewInt(1_000_000), testNow),
		owner:  addr("owner"),
		alice:  addr("alice"),
	}
	f.vault, err = vault.New(vault.Config{
		Address:     memory.ModuleAddress(vault.ModuleName),
		BaseDenom:   usdc,
		Owner:       f.owner,
		Ledger:      bank,
		Venue:       pool,
		Market:      lending,
		Oracle:      f.oracle,
		MaxPriceAge: 10 * time.Minute,
		Clock:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.server = NewWebServer("0", f.vault, store)
	return f
}

func (f *fixture) fund(t *testing.T, who sdk.AccAddress, amount int64) {
	t.Helper()
	require.NoError(t, f.bank.Mint(who, usdc, sdkmath.NewInt(amount)))
	require.NoError(t, f.bank.Approve(context.Background(), who, f.vault.Address(), usdc, sdkmath.NewInt(amount)))
}

// do sends a request as caller (empty for none) and decodes the JSON body.
func (f *fixture) do(t *testing.T, method, path string, caller sdk.AccAddress, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if !caller.Empty() {
		req.Header.Set(CallerHeader, caller.String())
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestHealthWithoutStore(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body["status"])
	status := body["vault_status"].(map[string]any)
	require.Equal(t, false, status["database_configured"])
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	f := newFixture(t, &fakeStore{err: errors.New("connection refused")})

	code, body := f.do(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "DEGRADED", body["status"])
}

func TestDepositAndAccountView(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, f.alice, 1_000)

	code, body := f.do(t, http.MethodPost, "/api/vault/deposit", f.alice, depositRequest{Assets: "1000"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "1000", body["shares"])

	code, body = f.do(t, http.MethodGet, "/api/accounts/"+f.alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1000", body["shares"])
	require.Equal(t, "1000", body["max_redeem"])
	require.Nil(t, body["roles"])

	code, body = f.do(t, http.MethodGet, "/api/vault/summary", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1000", body["total_assets"])
	require.Equal(t, "1000", body["total_shares"])
}

func TestRedeemToReceiver(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, f.alice, 1_000)
	bob := addr("bob")

	code, _ := f.do(t, http.MethodPost, "/api/vault/deposit", f.alice, depositRequest{Assets: "1000"})
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/api/vault/redeem", f.alice, redeemRequest{Shares: "400", Receiver: bob.String()})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "400", body["assets"])

	balance, err := f.bank.BalanceOf(context.Background(), bob, usdc)
	require.NoError(t, err)
	require.Equal(t, int64(400), balance.Int64())
}

func TestUserOperationErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, f.alice, 100)

	testCases := []struct {
		name   string
		path   string
		caller sdk.AccAddress
		body   any
		status int
	}{
		{"missing caller", "/api/vault/deposit", nil, depositRequest{Assets: "10"}, http.StatusUnauthorized},
		{"malformed amount", "/api/vault/deposit", f.alice, depositRequest{Assets: "ten"}, http.StatusBadRequest},
		{"unknown field", "/api/vault/deposit", f.alice, map[string]string{"asset": "10"}, http.StatusBadRequest},
		{"bad receiver", "/api/vault/mint", f.alice, mintRequest{Shares: "10", Receiver: "nope"}, http.StatusBadRequest},
		{"redeem without shares", "/api/vault/redeem", f.alice, redeemRequest{Shares: "10"}, http.StatusUnprocessableEntity},
		{"transfer without shares", "/api/shares/transfer", f.alice, sharesRequest{Account: addr("bob").String(), Amount: "1"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.status, code, body)
			require.Equal(t, true, body["error"])
		})
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodGet, "/api/vault/preview/deposit?amount=1000", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1000", body["result"])

	code, _ = f.do(t, http.MethodGet, "/api/vault/preview/flash-loan?amount=1", nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/vault/preview/mint", nil, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestLatestPriceStale(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodGet, "/api/vault/price", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1000000", body["price"])

	f.oracle.Set(sdkmath.NewInt(1_000_000), testNow.Add(-time.Hour))
	code, _ = f.do(t, http.MethodGet, "/api/vault/price", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)

	f.oracle.SetError(errors.New("feed offline"))
	code, _ = f.do(t, http.MethodGet, "/api/vault/price", nil, nil)
	require.Equal(t, http.StatusBadGateway, code)
}

func TestAdminEndpointsRequireRoles(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodPost, "/api/admin/fees", f.alice, feesRequest{EntryFeeBasisPoints: 50})
	require.Equal(t, http.StatusForbidden, code)

	code, body := f.do(t, http.MethodPost, "/api/admin/fees", f.owner, feesRequest{EntryFeeBasisPoints: 50, ExitFeeBasisPoints: 25})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, float64(50), body["entry_fee_basis_points"])
	require.Equal(t, float64(25), body["exit_fee_basis_points"])

	code, _ = f.do(t, http.MethodPost, "/api/admin/fees", f.owner, feesRequest{EntryFeeBasisPoints: 10_001})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/admin/health-factor", f.owner, healthFactorRequest{Target: "0"})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/api/admin/health-factor", f.owner, healthFactorRequest{Target: "1500000000000000000"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = f.do(t, http.MethodGet, "/api/vault/health-factor", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1500000000000000000", body["target"])
}

func TestRoleManagementAndGateway(t *testing.T) {
	f := newFixture(t, nil)
	keeper := addr("keeper")

	code, _ := f.do(t, http.MethodPost, "/api/gateway/lending/deposit", keeper, amountRequest{Amount: "10"})
	require.Equal(t, http.StatusForbidden, code)

	code, body := f.do(t, http.MethodPost, "/api/admin/roles/grant", f.owner, accountRequest{Account: keeper.String(), Role: "strategy"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, true, body["held"])

	code, body = f.do(t, http.MethodGet, "/api/accounts/"+keeper.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{"STRATEGY"}, body["roles"])

	code, _ = f.do(t, http.MethodPost, "/api/admin/roles/grant", f.owner, accountRequest{Account: keeper.String(), Role: "auditor"})
	require.Equal(t, http.StatusForbidden, code)

	code, body = f.do(t, http.MethodPost, "/api/gateway/swap", keeper, swapRequest{
		AmountIn:     "10",
		MinAmountOut: "1",
		Path:         []string{usdc},
		Deadline:     testNow.Add(time.Minute),
	})
	require.Equal(t, http.StatusBadRequest, code, body)

	code, body = f.do(t, http.MethodPost, "/api/admin/roles/revoke", f.owner, accountRequest{Account: keeper.String(), Role: "STRATEGY"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, false, body["held"])
}

func TestRotateStrategyAndRebalance(t *testing.T) {
	f := newFixture(t, nil)
	next := addr("next")

	code, body := f.do(t, http.MethodPost, "/api/gateway/strategy", f.owner, accountRequest{Account: next.String()})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, next.String(), body["strategy"])

	code, _ = f.do(t, http.MethodPost, "/api/gateway/rebalance", next, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, body = f.do(t, http.MethodPost, "/api/gateway/rebalance", f.owner, nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "1000000000000000000", body["target_health_factor"])
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := f.do(t, http.MethodGet, "/api/events", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)

	store := &fakeStore{
		events: []types.Event{{ID: "e1", Type: types.EventDeposit, Caller: f.alice.String(), Timestamp: testNow}},
		stats: &state.EventStats{
			CountsByType:  map[types.EventType]int{types.EventDeposit: 1},
			TotalFees:     sdkmath.ZeroInt(),
			TotalDeposits: sdkmath.NewInt(1_000),
			TotalWithdraw: sdkmath.ZeroInt(),
		},
	}
	f = newFixture(t, store)

	code, body := f.do(t, http.MethodGet, "/api/events?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["count"])
	require.Equal(t, 5, store.lastLimit)

	code, body = f.do(t, http.MethodGet, "/api/snapshots?limit=1000", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(20), body["limit"])

	code, _ = f.do(t, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, code)

	store.err = errors.New("boom")
	code, _ = f.do(t, http.MethodGet, "/api/events", nil, nil)
	require.Equal(t, http.StatusInternalServerError, code)
}

func TestFaucetFundsUserFlowOverHTTP(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodPost, "/api/sim/fund", f.alice, fundRequest{Amount: "1000"})
	require.Equal(t, http.StatusNotFound, code)

	f.server.EnableFaucet(f.bank)

	code, body := f.do(t, http.MethodPost, "/api/sim/fund", f.alice, fundRequest{Amount: "1500"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, f.alice.String(), body["account"])
	require.Equal(t, usdc, body["denom"])
	require.Equal(t, "1500", body["amount"])

	code, _ = f.do(t, http.MethodPost, "/api/sim/fund", f.alice, fundRequest{Amount: "0"})
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/api/sim/fund", nil, fundRequest{Amount: "10"})
	require.Equal(t, http.StatusUnauthorized, code)

	code, body = f.do(t, http.MethodPost, "/api/vault/deposit", f.alice, depositRequest{Assets: "1000"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "1000", body["shares"])

	code, body = f.do(t, http.MethodPost, "/api/vault/mint", f.alice, mintRequest{Shares: "500"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "500", body["assets"])

	code, body = f.do(t, http.MethodPost, "/api/vault/withdraw", f.alice, withdrawRequest{Assets: "300"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "300", body["shares"])

	code, body = f.do(t, http.MethodGet, "/api/accounts/"+f.alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1200", body["shares"])

	// Funding another account while a vault transaction holds the ledger is refused.
	bob := addr("bob")
	cp := f.bank.Checkpoint()
	code, _ = f.do(t, http.MethodPost, "/api/sim/fund", f.alice, fundRequest{Account: bob.String(), Amount: "10"})
	require.Equal(t, http.StatusConflict, code)
	f.bank.RevertTo(cp)

	code, body = f.do(t, http.MethodPost, "/api/sim/fund", f.alice, fundRequest{Account: bob.String(), Amount: "10"})
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, bob.String(), body["account"])
}
