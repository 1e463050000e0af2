package roles

import (
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"
)

func addr(name string) sdk.AccAddress {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b)
}

func TestAuthorizeReturnsGrantingRole(t *testing.T) {
	r := NewRegistry()
	owner := addr("owner")
	_, err := r.Grant(owner, Owner)
	require.NoError(t, err)

	auth, err := r.Authorize(owner, Strategy, Owner)
	require.NoError(t, err)
	require.Equal(t, Owner, auth.Role)
	require.True(t, auth.Caller.Equals(owner))

	_, err = r.Authorize(addr("stranger"), Owner, Strategy)
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = r.Authorize(nil, Owner)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestGrantIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := addr("a")
	added, err := r.Grant(a, Owner)
	require.NoError(t, err)
	require.True(t, added)
	added, err = r.Grant(a, Owner)
	require.NoError(t, err)
	require.False(t, added)
	require.Len(t, r.Members(Owner), 1)
}

func TestGrantValidatesInput(t *testing.T) {
	r := NewRegistry()
	_, err := r.Grant(nil, Owner)
	require.ErrorIs(t, err, ErrZeroAddress)
	_, err = r.Grant(addr("a"), Role("PAUSER"))
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestRotateStrategyExclusivity(t *testing.T) {
	r := NewRegistry()
	old, next := addr("old"), addr("next")

	previous, err := r.RotateStrategy(old)
	require.NoError(t, err)
	require.True(t, previous.Empty())

	previous, err = r.RotateStrategy(next)
	require.NoError(t, err)
	require.True(t, previous.Equals(old))
	require.True(t, r.Has(next, Strategy))
	require.False(t, r.Has(old, Strategy))
	require.Equal(t, []string{next.String()}, r.Members(Strategy))
}

func TestRotateStrategyToSameHolder(t *testing.T) {
	r := NewRegistry()
	s := addr("strategy")
	_, err := r.RotateStrategy(s)
	require.NoError(t, err)
	_, err = r.RotateStrategy(s)
	require.NoError(t, err)
	require.True(t, r.Has(s, Strategy))
	require.Len(t, r.Members(Strategy), 1)
	require.True(t, r.StrategyHolder().Equals(s))
}

func TestRotateStrategyRejectsEmpty(t *testing.T) {
	r := NewRegistry()
	s := addr("strategy")
	_, err := r.RotateStrategy(s)
	require.NoError(t, err)
	_, err = r.RotateStrategy(sdk.AccAddress{})
	require.ErrorIs(t, err, ErrZeroAddress)
	require.True(t, r.Has(s, Strategy))
}

func TestRevokeClearsRotationHolder(t *testing.T) {
	r := NewRegistry()
	s := addr("strategy")
	_, err := r.RotateStrategy(s)
	require.NoError(t, err)
	revoked, err := r.Revoke(s, Strategy)
	require.NoError(t, err)
	require.True(t, revoked)
	require.True(t, r.StrategyHolder().Empty())
}
