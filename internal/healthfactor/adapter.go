package healthfactor

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/hfvault/internal/types"
)

// Scale is the fixed-point unit of the health factor. A target equal to Scale is neutral.
var Scale = sdkmath.NewInt(1_000_000_000_000_000_000)

var (
	ErrZeroHealthFactor = errors.New("target health factor is zero")
	ErrAmountInvalid    = errors.New("amount is nil or negative")
	ErrOverflow         = errors.New("adjusted amount exceeds 256-bit range")
)

// Converter is the raw pool-ratio conversion the adapter delegates to.
type Converter interface {
	ConvertToShares(assets sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error)
	ConvertToAssets(shares sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error)
}

// Adapter distorts the share/asset exchange rate by a single global health factor.
type Adapter struct {
	target sdkmath.Int
}

// NewAdapter returns an adapter at the given target.
func NewAdapter(target sdkmath.Int) (*Adapter, error) {
	a := &Adapter{}
	if err := a.SetTarget(target); err != nil {
		return nil, err
	}
	return a, nil
}

// Neutral returns an adapter that leaves conversions untouched.
func Neutral() *Adapter {
	return &Adapter{target: Scale}
}

// Target returns the current target health factor.
func (a *Adapter) Target() sdkmath.Int {
	return a.target
}

// SetTarget replaces the target health factor. Zero is rejected.
func (a *Adapter) SetTarget(target sdkmath.Int) error {
	if target.IsNil() || target.IsNegative() {
		return ErrAmountInvalid
	}
	if target.IsZero() {
		return ErrZeroHealthFactor
	}
	a.target = target
	return nil
}

// IsNeutral reports whether the target equals Scale.
func (a *Adapter) IsNeutral() bool {
	return a.target.Equal(Scale)
}

// AdjustAssets returns assets * target / 1e18, rounded down.
func (a *Adapter) AdjustAssets(assets sdkmath.Int) (sdkmath.Int, error) {
	if err := a.check(assets); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return mulDiv(assets, a.target, Scale)
}

// AdjustShares returns shares * 1e18 / target, rounded down.
func (a *Adapter) AdjustShares(shares sdkmath.Int) (sdkmath.Int, error) {
	if err := a.check(shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return mulDiv(shares, Scale, a.target)
}

// ToShareSpace adjusts assets by the target and converts them at the pool ratio.
func (a *Adapter) ToShareSpace(conv Converter, assets sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	adjusted, err := a.AdjustAssets(assets)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.ConvertToShares(adjusted, rounding)
}

// ToAssetSpace adjusts shares by the inverse target and converts them at the pool ratio.
func (a *Adapter) ToAssetSpace(conv Converter, shares sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	adjusted, err := a.AdjustShares(shares)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return conv.ConvertToAssets(adjusted, rounding)
}

func (a *Adapter) check(amount sdkmath.Int) error {
	if a.target.IsNil() || a.target.IsZero() {
		return ErrZeroHealthFactor
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrAmountInvalid
	}
	return nil
}

func mulDiv(x, y, d sdkmath.Int) (sdkmath.Int, error) {
	product := new(big.Int).Mul(x.BigInt(), y.BigInt())
	product.Quo(product, d.BigInt())
	if product.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(product), nil
}
