/*

This file contains QuotedVenue, a swap venue that prices every hop with the Elys AMM swap
estimation query and settles on the vault's asset ledger against a liquidity account. It lets
the service run against live chain prices without signing transactions.

*/

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	amm "github.com/elys-network/elys/v6/x/amm/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/types"
)

const swapEstimationPath = "/elys.amm.Query/SwapEstimationByDenom"

var (
	ErrInvalidPath      = errors.New("swap path must contain at least two denoms")
	ErrDeadlineExpired  = errors.New("swap deadline expired")
	ErrSlippageExceeded = errors.New("swap output below minimum")
)

// Quoter estimates the output of a single swap hop.
type Quoter interface {
	EstimateSwap(ctx context.Context, amountIn sdk.Coin, denomOut string) (sdkmath.Int, error)
}

// AMMQuoter estimates swaps with the AMM module's SwapEstimationByDenom query.
type AMMQuoter struct {
	client  *ABCIClient
	address string // Account the estimate is computed for; affects fee tiers on chain
}

// NewAMMQuoter creates a quoter using client. address may be empty.
func NewAMMQuoter(client *ABCIClient, address string) *AMMQuoter {
	return &AMMQuoter{client: client, address: address}
}

func (q *AMMQuoter) EstimateSwap(ctx context.Context, amountIn sdk.Coin, denomOut string) (sdkmath.Int, error) {
	req := &amm.QuerySwapEstimationByDenomRequest{
		DenomIn:  amountIn.Denom,
		DenomOut: denomOut,
		Amount:   amountIn,
		Address:  q.address,
	}
	var resp amm.QuerySwapEstimationByDenomResponse
	if err := q.client.Query(ctx, swapEstimationPath, req, &resp); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if resp.Amount.Amount.IsNil() || !resp.Amount.Amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("swap estimation for %s -> %s returned no output", amountIn, denomOut)
	}
	return resp.Amount.Amount, nil
}

// QuotedVenue is a collab.SwapVenue. The sold amount is pulled from the trader into the
// liquidity account and the quoted output is paid out of it.
type QuotedVenue struct {
	address   sdk.AccAddress
	liquidity sdk.AccAddress
	ledger    collab.AssetLedger
	quoter    Quoter
	clock     func() time.Time
	logger    zerolog.Logger
}

// NewQuotedVenue creates a venue. address is the spender traders approve; liquidity holds the
// inventory both sides of every swap settle against.
func NewQuotedVenue(address, liquidity sdk.AccAddress, ledger collab.AssetLedger, quoter Quoter, clock func() time.Time) (*QuotedVenue, error) {
	if address.Empty() || liquidity.Empty() {
		return nil, errors.New("venue and liquidity addresses are required")
	}
	if ledger == nil || quoter == nil {
		return nil, errors.New("asset ledger and quoter are required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &QuotedVenue{
		address:   address,
		liquidity: liquidity,
		ledger:    ledger,
		quoter:    quoter,
		clock:     clock,
		logger:    logger.GetForComponent("quoted_venue"),
	}, nil
}

func (v *QuotedVenue) Address() sdk.AccAddress {
	return v.address
}

// Quote prices amountIn along path hop by hop.
func (v *QuotedVenue) Quote(ctx context.Context, amountIn sdkmath.Int, path []string) (sdkmath.Int, error) {
	if len(path) < 2 {
		return sdkmath.ZeroInt(), ErrInvalidPath
	}
	amount := amountIn
	for i := 0; i+1 < len(path); i++ {
		out, err := v.quoter.EstimateSwap(ctx, sdk.Coin{Denom: path[i], Amount: amount}, path[i+1])
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("quote hop %s -> %s: %w", path[i], path[i+1], err)
		}
		amount = out
	}
	return amount, nil
}

func (v *QuotedVenue) SwapExact(ctx context.Context, trader sdk.AccAddress, req types.SwapRequest) (sdkmath.Int, error) {
	if !req.Deadline.IsZero() && v.clock().After(req.Deadline) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deadline %s", ErrDeadlineExpired, req.Deadline.Format(time.RFC3339))
	}
	out, err := v.Quote(ctx, req.AmountIn, req.Path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(req.MinAmountOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, out, req.MinAmountOut)
	}

	denomIn, denomOut := req.Path[0], req.Path[len(req.Path)-1]
	if err := v.ledger.TransferFrom(ctx, v.address, trader, v.liquidity, denomIn, req.AmountIn); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pull %s%s: %w", req.AmountIn, denomIn, err)
	}
	if err := v.ledger.Transfer(ctx, v.liquidity, trader, denomOut, out); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pay out %s%s: %w", out, denomOut, err)
	}

	v.logger.Info().
		Str("trader", trader.String()).
		Str("tokenIn", req.AmountIn.String()+denomIn).
		Str("tokenOut", out.String()+denomOut).
		Int("hops", len(req.Path)-1).
		Msg("Swap settled at quoted price")
	return out, nil
}
