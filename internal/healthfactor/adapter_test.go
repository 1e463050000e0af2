package healthfactor

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hfvault/internal/types"
)

// ratioConverter converts at a fixed 2:1 shares per asset and records what it was given.
type ratioConverter struct {
	lastAssets sdkmath.Int
	lastShares sdkmath.Int
}

func (c *ratioConverter) ConvertToShares(assets sdkmath.Int, _ types.Rounding) (sdkmath.Int, error) {
	c.lastAssets = assets
	return assets.MulRaw(2), nil
}

func (c *ratioConverter) ConvertToAssets(shares sdkmath.Int, rounding types.Rounding) (sdkmath.Int, error) {
	c.lastShares = shares
	if rounding == types.RoundUp {
		return shares.AddRaw(1).QuoRaw(2), nil
	}
	return shares.QuoRaw(2), nil
}

func TestNeutralAdapterIsIdentity(t *testing.T) {
	a := Neutral()
	require.True(t, a.IsNeutral())
	conv := &ratioConverter{}

	for _, v := range []int64{0, 1, 999, 1_000_000, 123_456_789_012} {
		amount := sdkmath.NewInt(v)

		shares, err := a.ToShareSpace(conv, amount, types.RoundDown)
		require.NoError(t, err)
		require.Equal(t, amount.String(), conv.lastAssets.String())
		require.Equal(t, amount.MulRaw(2).String(), shares.String())

		assets, err := a.ToAssetSpace(conv, amount, types.RoundDown)
		require.NoError(t, err)
		require.Equal(t, amount.String(), conv.lastShares.String())
		require.Equal(t, amount.QuoRaw(2).String(), assets.String())
	}
}

func TestAdapterScalesBothDirections(t *testing.T) {
	a, err := NewAdapter(Scale.MulRaw(2))
	require.NoError(t, err)
	conv := &ratioConverter{}

	_, err = a.ToShareSpace(conv, sdkmath.NewInt(500), types.RoundDown)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000), conv.lastAssets)

	_, err = a.ToAssetSpace(conv, sdkmath.NewInt(500), types.RoundDown)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(250), conv.lastShares)
}

func TestAdapterRoundsAdjustmentDown(t *testing.T) {
	// 0.3 health factor
	a, err := NewAdapter(sdkmath.NewInt(300_000_000_000_000_000))
	require.NoError(t, err)

	adjusted, err := a.AdjustAssets(sdkmath.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2), adjusted)

	adjusted, err = a.AdjustShares(sdkmath.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(23), adjusted)
}

func TestAdapterRejectsZeroTarget(t *testing.T) {
	_, err := NewAdapter(sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrZeroHealthFactor)

	a := Neutral()
	require.ErrorIs(t, a.SetTarget(sdkmath.ZeroInt()), ErrZeroHealthFactor)
	require.True(t, a.IsNeutral(), "failed update must keep previous target")

	var zero Adapter
	_, err = zero.AdjustShares(sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrZeroHealthFactor)
}

func TestAdapterRejectsNegativeAmounts(t *testing.T) {
	a := Neutral()
	_, err := a.AdjustAssets(sdkmath.NewInt(-5))
	require.ErrorIs(t, err, ErrAmountInvalid)
}
