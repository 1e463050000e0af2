package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/elys-network/hfvault/internal/memory"
	"github.com/elys-network/hfvault/internal/roles"
	"github.com/elys-network/hfvault/internal/types"
)

// Amounts travel as decimal strings so 256-bit values survive JSON.

type depositRequest struct {
	Assets   string `json:"assets"`
	Receiver string `json:"receiver"`
}

type mintRequest struct {
	Shares   string `json:"shares"`
	Receiver string `json:"receiver"`
}

type withdrawRequest struct {
	Assets   string `json:"assets"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

type redeemRequest struct {
	Shares   string `json:"shares"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

type sharesRequest struct {
	Account string `json:"account"` // Spender or receiver
	Amount  string `json:"amount"`
}

type swapRequest struct {
	AmountIn     string    `json:"amount_in"`
	MinAmountOut string    `json:"min_amount_out"`
	Path         []string  `json:"path"`
	Deadline     time.Time `json:"deadline"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type debtRequest struct {
	Denom    string         `json:"denom"`
	Amount   string         `json:"amount"`
	RateMode types.RateMode `json:"rate_mode"`
}

type accountRequest struct {
	Account string `json:"account"`
	Role    string `json:"role,omitempty"`
}

type fundRequest struct {
	Account string `json:"account"` // Defaults to the caller
	Amount  string `json:"amount"`
}

type feesRequest struct {
	EntryFeeBasisPoints uint64 `json:"entry_fee_basis_points"`
	ExitFeeBasisPoints  uint64 `json:"exit_fee_basis_points"`
}

type feeRecipientsRequest struct {
	EntryFeeRecipient string `json:"entry_fee_recipient"`
	ExitFeeRecipient  string `json:"exit_fee_recipient"`
}

type healthFactorRequest struct {
	Target string `json:"target"` // Scaled by 1e18
}

func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseAmount(field, raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(strings.TrimSpace(raw))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%s must be an integer, got %q", field, raw)
	}
	return v, nil
}

// parseAddress parses a bech32 address; an empty value yields fallback.
func parseAddress(field, raw string, fallback sdk.AccAddress) (sdk.AccAddress, error) {
	if raw == "" {
		return fallback, nil
	}
	addr, err := sdk.AccAddressFromBech32(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// parseAll runs every parser and reports the first failure as a 400.
func (ws *WebServer) parseAll(w http.ResponseWriter, parsers ...func() error) bool {
	for _, parse := range parsers {
		if err := parse(); err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

func amountInto(dst *sdkmath.Int, field, raw string) func() error {
	return func() (err error) {
		*dst, err = parseAmount(field, raw)
		return err
	}
}

func addressInto(dst *sdk.AccAddress, field, raw string, fallback sdk.AccAddress) func() error {
	return func() (err error) {
		*dst, err = parseAddress(field, raw, fallback)
		return err
	}
}

func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.vault.Summary(r.Context())
	if err != nil {
		ws.writeVaultError(w, "summary", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	price, updatedAt, err := ws.vault.LatestPrice(r.Context())
	if err != nil {
		ws.writeVaultError(w, "latest_price", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"price":      price,
		"updated_at": updatedAt.UTC(),
	})
}

func (ws *WebServer) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	target, err := ws.vault.HealthFactor(r.Context())
	if err != nil {
		ws.writeVaultError(w, "health_factor", err)
		return
	}
	current, err := ws.vault.CurrentHealthFactor(r.Context())
	if err != nil {
		ws.writeVaultError(w, "current_health_factor", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"target":  target,
		"current": current,
	})
}

func (ws *WebServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var result sdkmath.Int
	switch kind {
	case "deposit":
		result, err = ws.vault.PreviewDeposit(r.Context(), amount)
	case "mint":
		result, err = ws.vault.PreviewMint(r.Context(), amount)
	case "withdraw":
		result, err = ws.vault.PreviewWithdraw(r.Context(), amount)
	case "redeem":
		result, err = ws.vault.PreviewRedeem(r.Context(), amount)
	case "convert-to-shares":
		result, err = ws.vault.ConvertToShares(r.Context(), amount)
	case "convert-to-assets":
		result, err = ws.vault.ConvertToAssets(r.Context(), amount)
	default:
		ws.writeErrorResponse(w, http.StatusNotFound, "Unknown preview "+kind)
		return
	}
	if err != nil {
		ws.writeVaultError(w, "preview_"+kind, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"kind":   kind,
		"amount": amount,
		"result": result,
	})
}

func (ws *WebServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", mux.Vars(r)["address"], nil)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := ws.vault.BalanceOf(r.Context(), account)
	if err != nil {
		ws.writeVaultError(w, "balance_of", err)
		return
	}
	maxWithdraw, err := ws.vault.MaxWithdraw(r.Context(), account)
	if err != nil {
		ws.writeVaultError(w, "max_withdraw", err)
		return
	}
	maxRedeem, err := ws.vault.MaxRedeem(r.Context(), account)
	if err != nil {
		ws.writeVaultError(w, "max_redeem", err)
		return
	}

	var held []string
	for _, role := range []roles.Role{roles.Admin, roles.Owner, roles.Strategy} {
		if ws.vault.HasRole(account, role) {
			held = append(held, string(role))
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":      account.String(),
		"shares":       shares,
		"max_withdraw": maxWithdraw,
		"max_redeem":   maxRedeem,
		"roles":        held,
	})
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		assets   sdkmath.Int
		receiver sdk.AccAddress
	)
	if !ws.parseAll(w, amountInto(&assets, "assets", req.Assets), addressInto(&receiver, "receiver", req.Receiver, caller)) {
		return
	}
	shares, err := ws.vault.Deposit(r.Context(), caller, assets, receiver)
	if err != nil {
		ws.writeVaultError(w, "deposit", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

func (ws *WebServer) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		shares   sdkmath.Int
		receiver sdk.AccAddress
	)
	if !ws.parseAll(w, amountInto(&shares, "shares", req.Shares), addressInto(&receiver, "receiver", req.Receiver, caller)) {
		return
	}
	assets, err := ws.vault.Mint(r.Context(), caller, shares, receiver)
	if err != nil {
		ws.writeVaultError(w, "mint", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		assets          sdkmath.Int
		receiver, owner sdk.AccAddress
	)
	if !ws.parseAll(w,
		amountInto(&assets, "assets", req.Assets),
		addressInto(&receiver, "receiver", req.Receiver, caller),
		addressInto(&owner, "owner", req.Owner, caller),
	) {
		return
	}
	shares, err := ws.vault.Withdraw(r.Context(), caller, assets, receiver, owner)
	if err != nil {
		ws.writeVaultError(w, "withdraw", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

func (ws *WebServer) handleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		shares          sdkmath.Int
		receiver, owner sdk.AccAddress
	)
	if !ws.parseAll(w,
		amountInto(&shares, "shares", req.Shares),
		addressInto(&receiver, "receiver", req.Receiver, caller),
		addressInto(&owner, "owner", req.Owner, caller),
	) {
		return
	}
	assets, err := ws.vault.Redeem(r.Context(), caller, shares, receiver, owner)
	if err != nil {
		ws.writeVaultError(w, "redeem", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"assets": assets, "shares": shares})
}

func (ws *WebServer) handleApproveShares(w http.ResponseWriter, r *http.Request) {
	ws.handleShares(w, r, "approve_shares")
}

func (ws *WebServer) handleTransferShares(w http.ResponseWriter, r *http.Request) {
	ws.handleShares(w, r, "transfer_shares")
}

func (ws *WebServer) handleShares(w http.ResponseWriter, r *http.Request, op string) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req sharesRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		amount  sdkmath.Int
		account sdk.AccAddress
	)
	if !ws.parseAll(w, amountInto(&amount, "amount", req.Amount), addressInto(&account, "account", req.Account, nil)) {
		return
	}
	var err error
	if op == "approve_shares" {
		err = ws.vault.ApproveShares(r.Context(), caller, account, amount)
	} else {
		err = ws.vault.TransferShares(r.Context(), caller, account, amount)
	}
	if err != nil {
		ws.writeVaultError(w, op, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"account": account.String(), "amount": amount})
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req swapRequest
	if !ws.decode(w, r, &req) {
		return
	}
	swap := types.SwapRequest{Path: req.Path, Deadline: req.Deadline}
	if !ws.parseAll(w, amountInto(&swap.AmountIn, "amount_in", req.AmountIn), amountInto(&swap.MinAmountOut, "min_amount_out", req.MinAmountOut)) {
		return
	}
	receipt, err := ws.vault.Swap(r.Context(), caller, swap)
	if err != nil {
		ws.writeVaultError(w, "swap", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleLendingDeposit(w http.ResponseWriter, r *http.Request) {
	ws.handleLending(w, r, "lending_deposit")
}

func (ws *WebServer) handleLendingWithdraw(w http.ResponseWriter, r *http.Request) {
	ws.handleLending(w, r, "lending_withdraw")
}

func (ws *WebServer) handleLending(w http.ResponseWriter, r *http.Request, op string) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var amount sdkmath.Int
	if !ws.parseAll(w, amountInto(&amount, "amount", req.Amount)) {
		return
	}
	var (
		receipt types.ActionReceipt
		err     error
	)
	if op == "lending_deposit" {
		receipt, err = ws.vault.DepositToLending(r.Context(), caller, amount)
	} else {
		receipt, err = ws.vault.WithdrawFromLending(r.Context(), caller, amount)
	}
	if err != nil {
		ws.writeVaultError(w, op, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleBorrow(w http.ResponseWriter, r *http.Request) {
	ws.handleDebt(w, r, "borrow")
}

func (ws *WebServer) handleRepay(w http.ResponseWriter, r *http.Request) {
	ws.handleDebt(w, r, "repay")
}

func (ws *WebServer) handleDebt(w http.ResponseWriter, r *http.Request, op string) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req debtRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var amount sdkmath.Int
	if !ws.parseAll(w, amountInto(&amount, "amount", req.Amount)) {
		return
	}
	var (
		receipt types.ActionReceipt
		err     error
	)
	if op == "borrow" {
		receipt, err = ws.vault.Borrow(r.Context(), caller, req.Denom, amount, req.RateMode)
	} else {
		receipt, err = ws.vault.Repay(r.Context(), caller, req.Denom, amount, req.RateMode)
	}
	if err != nil {
		ws.writeVaultError(w, op, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleRotateStrategy(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var next sdk.AccAddress
	if !ws.parseAll(w, addressInto(&next, "account", req.Account, nil)) {
		return
	}
	if err := ws.vault.RotateStrategy(r.Context(), caller, next); err != nil {
		ws.writeVaultError(w, "rotate_strategy", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"strategy": ws.vault.Strategy().String()})
}

func (ws *WebServer) handleRebalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	current, target, err := ws.vault.Rebalance(r.Context(), caller)
	if err != nil {
		ws.writeVaultError(w, "rebalance", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"current_health_factor": current,
		"target_health_factor":  target,
	})
}

func (ws *WebServer) handleUpdateFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req feesRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if err := ws.vault.UpdateFeeBasisPoints(r.Context(), caller, req.EntryFeeBasisPoints, req.ExitFeeBasisPoints); err != nil {
		ws.writeVaultError(w, "update_fee_basis_points", err)
		return
	}
	ws.respondFees(w, r)
}

func (ws *WebServer) handleUpdateFeeRecipients(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req feeRecipientsRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var entry, exit sdk.AccAddress
	if !ws.parseAll(w,
		addressInto(&entry, "entry_fee_recipient", req.EntryFeeRecipient, nil),
		addressInto(&exit, "exit_fee_recipient", req.ExitFeeRecipient, nil),
	) {
		return
	}
	if err := ws.vault.UpdateFeeRecipients(r.Context(), caller, entry, exit); err != nil {
		ws.writeVaultError(w, "update_fee_recipients", err)
		return
	}
	ws.respondFees(w, r)
}

func (ws *WebServer) respondFees(w http.ResponseWriter, r *http.Request) {
	fees, err := ws.vault.Fees(r.Context())
	if err != nil {
		ws.writeVaultError(w, "fees", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, fees)
}

func (ws *WebServer) handleUpdateHealthFactor(w http.ResponseWriter, r *http.Request) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req healthFactorRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var target sdkmath.Int
	if !ws.parseAll(w, amountInto(&target, "target", req.Target)) {
		return
	}
	if err := ws.vault.UpdateHealthFactor(r.Context(), caller, target); err != nil {
		ws.writeVaultError(w, "update_health_factor", err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"target": target})
}

func (ws *WebServer) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	ws.handleRole(w, r, "grant_role")
}

func (ws *WebServer) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	ws.handleRole(w, r, "revoke_role")
}

func (ws *WebServer) handleRole(w http.ResponseWriter, r *http.Request, op string) {
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var account sdk.AccAddress
	if !ws.parseAll(w, addressInto(&account, "account", req.Account, nil)) {
		return
	}
	role := roles.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	var err error
	if op == "grant_role" {
		err = ws.vault.GrantRole(r.Context(), caller, account, role)
	} else {
		err = ws.vault.RevokeRole(r.Context(), caller, account, role)
	}
	if err != nil {
		ws.writeVaultError(w, op, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"account": account.String(),
		"role":    role,
		"held":    ws.vault.HasRole(account, role),
	})
}

// handleFund mints base denom to an account on the paper ledger and approves the vault to pull it.
func (ws *WebServer) handleFund(w http.ResponseWriter, r *http.Request) {
	if ws.faucet == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Faucet is disabled")
		return
	}
	caller, ok := ws.caller(w, r)
	if !ok {
		return
	}
	var req fundRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var (
		account sdk.AccAddress
		amount  sdkmath.Int
	)
	if !ws.parseAll(w, addressInto(&account, "account", req.Account, caller), amountInto(&amount, "amount", req.Amount)) {
		return
	}
	if !amount.IsPositive() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	denom := ws.vault.BaseDenom()
	if err := ws.faucet.Fund(account, ws.vault.Address(), denom, amount); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, memory.ErrCheckpointOpen) {
			status = http.StatusConflict
		}
		ws.writeErrorResponse(w, status, err.Error())
		return
	}
	ws.logger.Info().
		Str("account", account.String()).
		Str("denom", denom).
		Str("amount", amount.String()).
		Msg("Paper account funded")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"account": account.String(),
		"denom":   denom,
		"amount":  amount,
	})
}
