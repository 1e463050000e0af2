package fees

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestFeeOnTotalConservation(t *testing.T) {
	fee, err := FeeOnTotal(sdkmath.NewInt(1_000_000), 100)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(9901), fee)
	require.Equal(t, sdkmath.NewInt(990_099), sdkmath.NewInt(1_000_000).Sub(fee))
}

func TestFeeRounding(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(sdkmath.Int, uint64) (sdkmath.Int, error)
		amount  int64
		bp      uint64
		wantFee int64
	}{
		{"raw exact", FeeOnRaw, 10_000, 100, 100},
		{"raw rounds up", FeeOnRaw, 9_850, 50, 50},
		{"raw one unit", FeeOnRaw, 1, 1, 1},
		{"raw zero rate", FeeOnRaw, 1_000, 0, 0},
		{"raw full rate", FeeOnRaw, 1_000, 10_000, 1_000},
		{"total rounds up", FeeOnTotal, 10_000, 100, 100},
		{"total half percent", FeeOnTotal, 9_900, 50, 50},
		{"total zero amount", FeeOnTotal, 0, 500, 0},
		{"total full rate", FeeOnTotal, 1_000, 10_000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := tt.fn(sdkmath.NewInt(tt.amount), tt.bp)
			require.NoError(t, err)
			require.Equal(t, sdkmath.NewInt(tt.wantFee).String(), fee.String())
		})
	}
}

func TestFeeBounds(t *testing.T) {
	amounts := []int64{0, 1, 2, 7, 99, 10_001, 1_000_000, 123_456_789}
	rates := []uint64{0, 1, 50, 100, 2_500, 9_999, 10_000}
	for _, a := range amounts {
		for _, bp := range rates {
			amount := sdkmath.NewInt(a)
			raw, err := FeeOnRaw(amount, bp)
			require.NoError(t, err)
			require.False(t, raw.IsNegative())
			require.True(t, raw.LTE(amount), "raw fee %s > amount %d at %d bp", raw, a, bp)

			total, err := FeeOnTotal(amount, bp)
			require.NoError(t, err)
			require.False(t, total.IsNegative())
			require.True(t, total.LTE(amount), "total fee %s > amount %d at %d bp", total, a, bp)
		}
	}
}

func TestFeeRejectsInvalidInput(t *testing.T) {
	_, err := FeeOnRaw(sdkmath.NewInt(-1), 10)
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = FeeOnTotal(sdkmath.Int{}, 10)
	require.ErrorIs(t, err, ErrAmountNil)

	_, err = FeeOnRaw(sdkmath.NewInt(10), 10_001)
	require.ErrorIs(t, err, ErrBasisPointsInvalid)
}

func TestFeeOnLargeAmounts(t *testing.T) {
	huge, ok := sdkmath.NewIntFromString("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.True(t, ok)
	fee, err := FeeOnTotal(huge, 10_000)
	require.NoError(t, err)
	require.True(t, fee.LTE(huge))
}
