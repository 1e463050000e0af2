/*

This file contains the types for privileged capital actions dispatched by the vault gateway.

*/

package types

import (
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// ActionType defines the privileged operations the gateway can dispatch.
type ActionType string

const (
	ActionSwap            ActionType = "SWAP"
	ActionLendingDeposit  ActionType = "LENDING_DEPOSIT"
	ActionLendingWithdraw ActionType = "LENDING_WITHDRAW"
	ActionBorrow          ActionType = "BORROW"
	ActionRepay           ActionType = "REPAY"
	ActionRotateStrategy  ActionType = "ROTATE_STRATEGY"
	ActionRebalance       ActionType = "REBALANCE"
)

// RateMode is the interest rate mode forwarded verbatim to the lending market.
type RateMode uint64

const (
	RateModeNone     RateMode = 0
	RateModeStable   RateMode = 1
	RateModeVariable RateMode = 2
)

func (m RateMode) String() string {
	switch m {
	case RateModeNone:
		return "none"
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return "mode-" + strconv.FormatUint(uint64(m), 10)
	}
}

// SwapRequest carries the parameters of a swap through the gateway.
type SwapRequest struct {
	AmountIn     sdkmath.Int `json:"amount_in"`
	MinAmountOut sdkmath.Int `json:"min_amount_out"`
	Path         []string    `json:"path"`     // Ordered denoms, first is sold, last is bought
	Deadline     time.Time   `json:"deadline"` // Venue rejects execution after this instant
}

// ActionReceipt is the structured result of a gateway action.
type ActionReceipt struct {
	TxID      string         `json:"tx_id"`
	Action    ActionType     `json:"action"`
	Caller    string         `json:"caller"`
	Role      string         `json:"role"`               // Role that authorized the call
	AmountIn  sdkmath.Int    `json:"amount_in"`          // Amount sent to the collaborator
	AmountOut sdkmath.Int    `json:"amount_out"`         // Amount reported back by the collaborator
	TokenOut  *sdktypes.Coin `json:"token_out,omitempty"` // For SWAP: coin received
	Timestamp time.Time      `json:"timestamp"`
}
