/*

This file contains the fee model used by the vault for entry and exit fees.

Both helpers round the fee up so sub-unit dust is always absorbed by the user and
never by the vault or the fee recipient.

*/

package fees

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// BasisPointScale is the denominator for all fee rates (10000 = 100%).
const BasisPointScale uint64 = 10_000

// Error definitions for fee calculations
var (
	ErrAmountNil          = errors.New("amount is nil")
	ErrAmountNegative     = errors.New("amount is negative")
	ErrBasisPointsInvalid = errors.New("basis points out of range")
	ErrResultOverflow     = errors.New("fee exceeds 256-bit range")
)

// FeeOnRaw returns the fee to add on top of an amount that does not include it yet:
// ceil(amount * bp / 10000).
func FeeOnRaw(amount sdkmath.Int, bp uint64) (sdkmath.Int, error) {
	if err := validate(amount, bp); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return mulDivCeil(amount, bp, BasisPointScale)
}

// FeeOnTotal returns the fee contained in an amount that already includes it:
// ceil(amount * bp / (bp + 10000)).
func FeeOnTotal(amount sdkmath.Int, bp uint64) (sdkmath.Int, error) {
	if err := validate(amount, bp); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return mulDivCeil(amount, bp, bp+BasisPointScale)
}

// ValidateBasisPoints checks that a rate is within [0, 10000].
func ValidateBasisPoints(bp uint64) error {
	if bp > BasisPointScale {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrBasisPointsInvalid, bp, BasisPointScale)
	}
	return nil
}

func validate(amount sdkmath.Int, bp uint64) error {
	if amount.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	return ValidateBasisPoints(bp)
}

func mulDivCeil(amount sdkmath.Int, num, den uint64) (sdkmath.Int, error) {
	if amount.IsZero() || num == 0 {
		return sdkmath.ZeroInt(), nil
	}
	product := new(big.Int).Mul(amount.BigInt(), new(big.Int).SetUint64(num))
	d := new(big.Int).SetUint64(den)
	product.Add(product, new(big.Int).Sub(d, big.NewInt(1)))
	product.Quo(product, d)
	if product.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), ErrResultOverflow
	}
	return sdkmath.NewIntFromBigInt(product), nil
}
