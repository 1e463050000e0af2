/*

This file defines the external collaborators the vault depends on.

Every call carries the acting account explicitly. A collaborator calling back into the vault
with the context it was given is rejected at once; with any other context it is rejected after
the vault's re-entry wait.

*/

package collab

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/types"
)

// AssetLedger is a multi-denom fungible asset ledger supporting approve-then-pull transfers.
type AssetLedger interface {
	Transfer(ctx context.Context, from, to sdk.AccAddress, denom string, amount sdkmath.Int) error
	TransferFrom(ctx context.Context, spender, owner, to sdk.AccAddress, denom string, amount sdkmath.Int) error
	Approve(ctx context.Context, owner, spender sdk.AccAddress, denom string, amount sdkmath.Int) error
	BalanceOf(ctx context.Context, account sdk.AccAddress, denom string) (sdkmath.Int, error)
}

// SwapVenue executes exact-input swaps along a path. The venue pulls AmountIn of Path[0]
// from trader using an allowance granted to Address.
type SwapVenue interface {
	Address() sdk.AccAddress
	SwapExact(ctx context.Context, trader sdk.AccAddress, req types.SwapRequest) (sdkmath.Int, error)
}

// LendingMarket is a money market. Supply and Repay pull funds from caller using an allowance
// granted to Address.
type LendingMarket interface {
	Address() sdk.AccAddress
	Supply(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, onBehalfOf sdk.AccAddress, referral uint16) error
	Withdraw(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, to sdk.AccAddress) (sdkmath.Int, error)
	Borrow(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode, referral uint16, onBehalfOf sdk.AccAddress) error
	Repay(ctx context.Context, caller sdk.AccAddress, denom string, amount sdkmath.Int, rateMode types.RateMode, onBehalfOf sdk.AccAddress) (sdkmath.Int, error)
}

// PriceOracle reports the latest price, already scaled, and when it was last updated.
type PriceOracle interface {
	LatestPrice(ctx context.Context) (sdkmath.Int, time.Time, error)
}

// Strategy reacts to the gap between the current and target health factor.
type Strategy interface {
	Execute(ctx context.Context, current, target sdkmath.Int) error
}

// Checkpointer is implemented by collaborators whose effects can be undone when the
// enclosing vault operation fails.
type Checkpointer interface {
	Checkpoint() int
	RevertTo(checkpoint int)
	Commit(checkpoint int)
}

// PositionValuer reports the net value of an account's position in denom.
// The value is supplied collateral minus debt and may be negative.
type PositionValuer interface {
	PositionValue(ctx context.Context, account sdk.AccAddress, denom string) (sdkmath.Int, error)
}

// HealthReporter reports an account's health factor scaled by 1e18.
type HealthReporter interface {
	HealthFactor(ctx context.Context, account sdk.AccAddress) (sdkmath.Int, error)
}
