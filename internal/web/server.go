package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/state"
	"github.com/elys-network/hfvault/internal/types"
	"github.com/elys-network/hfvault/internal/vault"
)

// CallerHeader carries the bech32 address a request acts as.
const CallerHeader = "X-Caller"

// Store is the persisted history served by the API.
type Store interface {
	RecentEvents(ctx context.Context, limit int) ([]types.Event, error)
	RecentSnapshots(ctx context.Context, limit int) ([]types.VaultSnapshot, error)
	EventStats(ctx context.Context) (*state.EventStats, error)
	Ping() error
}

// Faucet credits paper balances and lets spender pull them.
type Faucet interface {
	Fund(account, spender sdk.AccAddress, denom string, amount sdkmath.Int) error
}

// WebServer exposes the vault over HTTP.
type WebServer struct {
	router *mux.Router
	port   string
	vault  *vault.Vault
	store  Store
	faucet Faucet
	logger zerolog.Logger
	server *http.Server
}

// NewWebServer creates a new web server instance. store may be nil when no database is used.
func NewWebServer(port string, v *vault.Vault, store Store) *WebServer {
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		vault:  v,
		store:  store,
		logger: logger.GetForComponent("web_server"),
	}
	ws.setupRoutes()
	ws.server = &http.Server{
		Addr:         ":" + port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws
}

// EnableFaucet serves POST /api/sim/fund from f. Call it before Start.
func (ws *WebServer) EnableFaucet(f Faucet) {
	ws.faucet = f
	ws.logger.Warn().Msg("Paper ledger faucet enabled")
}

// Handler returns the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Read-only vault views
	api.HandleFunc("/vault/summary", ws.handleSummary).Methods("GET")
	api.HandleFunc("/vault/price", ws.handleLatestPrice).Methods("GET")
	api.HandleFunc("/vault/health-factor", ws.handleHealthFactor).Methods("GET")
	api.HandleFunc("/vault/preview/{kind}", ws.handlePreview).Methods("GET")
	api.HandleFunc("/accounts/{address}", ws.handleAccount).Methods("GET")

	// User operations
	api.HandleFunc("/vault/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/vault/mint", ws.handleMint).Methods("POST")
	api.HandleFunc("/vault/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/vault/redeem", ws.handleRedeem).Methods("POST")
	api.HandleFunc("/shares/approve", ws.handleApproveShares).Methods("POST")
	api.HandleFunc("/shares/transfer", ws.handleTransferShares).Methods("POST")

	// Gateway actions
	api.HandleFunc("/gateway/swap", ws.handleSwap).Methods("POST")
	api.HandleFunc("/gateway/lending/deposit", ws.handleLendingDeposit).Methods("POST")
	api.HandleFunc("/gateway/lending/withdraw", ws.handleLendingWithdraw).Methods("POST")
	api.HandleFunc("/gateway/borrow", ws.handleBorrow).Methods("POST")
	api.HandleFunc("/gateway/repay", ws.handleRepay).Methods("POST")
	api.HandleFunc("/gateway/strategy", ws.handleRotateStrategy).Methods("POST")
	api.HandleFunc("/gateway/rebalance", ws.handleRebalance).Methods("POST")

	// Owner and admin configuration
	api.HandleFunc("/admin/fees", ws.handleUpdateFees).Methods("POST")
	api.HandleFunc("/admin/fee-recipients", ws.handleUpdateFeeRecipients).Methods("POST")
	api.HandleFunc("/admin/health-factor", ws.handleUpdateHealthFactor).Methods("POST")
	api.HandleFunc("/admin/roles/grant", ws.handleGrantRole).Methods("POST")
	api.HandleFunc("/admin/roles/revoke", ws.handleRevokeRole).Methods("POST")

	// Paper ledger funding, 404 unless a faucet is enabled
	api.HandleFunc("/sim/fund", ws.handleFund).Methods("POST")

	// History
	api.HandleFunc("/events", ws.handleEvents).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleSnapshots).Methods("GET")
	api.HandleFunc("/stats", ws.handleStats).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully. A server shut down before Start never serves.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := false
	if ws.store != nil {
		dbHealthy = ws.store.Ping() == nil
		hasErrors = !dbHealthy
	}

	vaultInfo := map[string]interface{}{}
	if summary, err := ws.vault.Summary(r.Context()); err != nil {
		hasErrors = true
		vaultInfo["error"] = err.Error()
	} else {
		vaultInfo["address"] = summary.Address
		vaultInfo["total_assets"] = summary.TotalAssets
		vaultInfo["total_shares"] = summary.TotalShares
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "hfvault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_configured": ws.store != nil,
			"database_healthy":    dbHealthy,
			"vault":               vaultInfo,
		},
	})
}

func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := queryLimit(r, 50, 500)
	events, err := ws.store.RecentEvents(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

func (ws *WebServer) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := queryLimit(r, 20, 100)
	snapshots, err := ws.store.RecentSnapshots(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	})
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	stats, err := ws.store.EventStats(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get event stats")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "No database configured")
		return false
	}
	return true
}

func queryLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// caller parses the acting address. It writes a 401 and returns false when absent or invalid.
func (ws *WebServer) caller(w http.ResponseWriter, r *http.Request) (sdk.AccAddress, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		ws.writeErrorResponse(w, http.StatusUnauthorized, CallerHeader+" header is required")
		return nil, false
	}
	addr, err := sdk.AccAddressFromBech32(raw)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusUnauthorized, "Invalid "+CallerHeader+" address")
		return nil, false
	}
	return addr, true
}

// vaultErrorStatus maps vault errors onto HTTP status codes.
var vaultErrorStatus = []struct {
	err    error
	status int
}{
	{vault.ErrAccessDenied, http.StatusForbidden},
	{vault.ErrReentrantCall, http.StatusConflict},
	{vault.ErrCollaboratorFailure, http.StatusBadGateway},
	{vault.ErrStalePrice, http.StatusServiceUnavailable},
	{vault.ErrZeroAddress, http.StatusBadRequest},
	{vault.ErrInvalidPath, http.StatusBadRequest},
	{vault.ErrInvalidAmount, http.StatusBadRequest},
	{vault.ErrInvalidBasisPoints, http.StatusBadRequest},
	{vault.ErrDivisionByZeroHealthFactor, http.StatusBadRequest},
	{vault.ErrAmountOverflow, http.StatusBadRequest},
	{vault.ErrNoSharesMinted, http.StatusUnprocessableEntity},
	{vault.ErrExceededMaxWithdraw, http.StatusUnprocessableEntity},
	{vault.ErrExceededMaxRedeem, http.StatusUnprocessableEntity},
	{vault.ErrInsufficientAllowance, http.StatusUnprocessableEntity},
	{vault.ErrInsufficientShares, http.StatusUnprocessableEntity},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
	{context.Canceled, http.StatusServiceUnavailable},
}

func (ws *WebServer) writeVaultError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	for _, m := range vaultErrorStatus {
		if errors.Is(err, m.err) {
			status = m.status
			break
		}
	}
	if status >= http.StatusInternalServerError {
		ws.logger.Error().Err(err).Str("op", op).Msg("Vault request failed")
	}
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CallerHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("caller", r.Header.Get(CallerHeader)).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
