/*

This file contains a constant-product swap venue whose reserves are the balances held by its own
address on an asset ledger. Every denom shares one reserve, so a multi-hop path prices each hop
against the reserves updated by the previous hop.

*/

package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/types"
)

var (
	ErrInvalidPath           = errors.New("swap path must contain at least two distinct consecutive denoms")
	ErrDeadlineExpired       = errors.New("swap deadline expired")
	ErrSlippageExceeded      = errors.New("swap output below minimum")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
)

// Pool is an in-memory SwapVenue.
type Pool struct {
	mu             sync.Mutex
	address        sdk.AccAddress
	ledger         collab.AssetLedger
	feeBasisPoints uint64
	clock          func() time.Time
}

// NewPool creates a venue trading out of the reserves address holds on ledger.
func NewPool(address sdk.AccAddress, ledger collab.AssetLedger, feeBasisPoints uint64) (*Pool, error) {
	if address.Empty() {
		return nil, ErrEmptyAddress
	}
	if ledger == nil {
		return nil, errors.New("asset ledger cannot be nil")
	}
	if err := fees.ValidateBasisPoints(feeBasisPoints); err != nil {
		return nil, err
	}
	return &Pool{address: address, ledger: ledger, feeBasisPoints: feeBasisPoints, clock: time.Now}, nil
}

// SetClock replaces the time source used for deadline checks.
func (p *Pool) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

func (p *Pool) Address() sdk.AccAddress {
	return p.address
}

// Quote returns the output of swapping amountIn along path at current reserves.
func (p *Pool) Quote(ctx context.Context, amountIn sdkmath.Int, path []string) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(ctx, amountIn, path)
}

func (p *Pool) SwapExact(ctx context.Context, trader sdk.AccAddress, req types.SwapRequest) (sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !req.Deadline.IsZero() && p.clock().After(req.Deadline) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deadline %s", ErrDeadlineExpired, req.Deadline.Format(time.RFC3339))
	}
	if req.MinAmountOut.IsNil() || req.MinAmountOut.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	out, err := p.quoteLocked(ctx, req.AmountIn, req.Path)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(req.MinAmountOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, out, req.MinAmountOut)
	}

	denomIn, denomOut := req.Path[0], req.Path[len(req.Path)-1]
	if err := p.ledger.TransferFrom(ctx, p.address, trader, p.address, denomIn, req.AmountIn); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pull %s%s: %w", req.AmountIn, denomIn, err)
	}
	if err := p.ledger.Transfer(ctx, p.address, trader, denomOut, out); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pay out %s%s: %w", out, denomOut, err)
	}
	return out, nil
}

func (p *Pool) quoteLocked(ctx context.Context, amountIn sdkmath.Int, path []string) (sdkmath.Int, error) {
	if len(path) < 2 {
		return sdkmath.ZeroInt(), ErrInvalidPath
	}
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}

	reserves := make(map[string]*big.Int, len(path))
	for _, denom := range path {
		if denom == "" {
			return sdkmath.ZeroInt(), ErrEmptyDenom
		}
		if _, ok := reserves[denom]; ok {
			continue
		}
		balance, err := p.ledger.BalanceOf(ctx, p.address, denom)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		reserves[denom] = balance.BigInt()
	}

	scale := new(big.Int).SetUint64(fees.BasisPointScale)
	keep := new(big.Int).SetUint64(fees.BasisPointScale - p.feeBasisPoints)
	amount := amountIn.BigInt()
	for i := 0; i+1 < len(path); i++ {
		in, out := path[i], path[i+1]
		if in == out {
			return sdkmath.ZeroInt(), ErrInvalidPath
		}
		reserveIn, reserveOut := reserves[in], reserves[out]
		if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s/%s", ErrInsufficientLiquidity, in, out)
		}

		// out = reserveOut * inWithFee / (reserveIn * scale + inWithFee)
		inWithFee := new(big.Int).Mul(amount, keep)
		numerator := new(big.Int).Mul(reserveOut, inWithFee)
		denominator := new(big.Int).Mul(reserveIn, scale)
		denominator.Add(denominator, inWithFee)
		hopOut := numerator.Quo(numerator, denominator)
		if hopOut.Sign() == 0 {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s/%s output rounds to zero", ErrInsufficientLiquidity, in, out)
		}

		reserves[in] = new(big.Int).Add(reserveIn, amount)
		reserves[out] = new(big.Int).Sub(reserveOut, hopOut)
		amount = hopOut
	}
	return sdkmath.NewIntFromBigInt(amount), nil
}
