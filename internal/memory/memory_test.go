package memory

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hfvault/internal/types"
)

const (
	usdc = "uusdc"
	atom = "uatom"
)

func account(name string) sdk.AccAddress {
	b := make([]byte, 20)
	copy(b, name)
	return sdk.AccAddress(b)
}

func balance(t *testing.T, bank *Bank, who sdk.AccAddress, denom string) int64 {
	t.Helper()
	amount, err := bank.BalanceOf(context.Background(), who, denom)
	require.NoError(t, err)
	return amount.Int64()
}

func TestBankTransferAndAllowance(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	alice, bob, spender := account("alice"), account("bob"), account("spender")
	require.NoError(t, bank.Mint(alice, usdc, sdkmath.NewInt(100)))

	require.NoError(t, bank.Transfer(ctx, alice, bob, usdc, sdkmath.NewInt(30)))
	require.Equal(t, int64(70), balance(t, bank, alice, usdc))
	require.Equal(t, int64(30), balance(t, bank, bob, usdc))

	err := bank.Transfer(ctx, alice, bob, usdc, sdkmath.NewInt(71))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = bank.TransferFrom(ctx, spender, alice, bob, usdc, sdkmath.NewInt(10))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, bank.Approve(ctx, alice, spender, usdc, sdkmath.NewInt(50)))
	require.NoError(t, bank.TransferFrom(ctx, spender, alice, bob, usdc, sdkmath.NewInt(20)))
	require.Equal(t, sdkmath.NewInt(30), bank.Allowance(alice, spender, usdc))
	require.Equal(t, int64(50), balance(t, bank, alice, usdc))
	require.Equal(t, int64(50), balance(t, bank, bob, usdc))

	require.ErrorIs(t, bank.Transfer(ctx, alice, bob, usdc, sdkmath.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, bank.Transfer(ctx, alice, nil, usdc, sdkmath.NewInt(1)), ErrEmptyAddress)
}

func TestBankCheckpointRevert(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	alice, bob := account("alice"), account("bob")
	require.NoError(t, bank.Mint(alice, usdc, sdkmath.NewInt(100)))

	outer := bank.Checkpoint()
	require.NoError(t, bank.Transfer(ctx, alice, bob, usdc, sdkmath.NewInt(40)))

	inner := bank.Checkpoint()
	require.NoError(t, bank.Approve(ctx, alice, bob, atom, sdkmath.NewInt(5)))
	bank.Commit(inner)

	bank.RevertTo(outer)
	require.Equal(t, int64(100), balance(t, bank, alice, usdc))
	require.Equal(t, int64(0), balance(t, bank, bob, usdc))
	require.True(t, bank.Allowance(alice, bob, atom).IsZero())

	// Changes outside a checkpoint are permanent.
	require.NoError(t, bank.Transfer(ctx, alice, bob, usdc, sdkmath.NewInt(1)))
	bank.RevertTo(0)
	require.Equal(t, int64(1), balance(t, bank, bob, usdc))
}

func TestBankRejectsMintDuringCheckpoint(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	alice, vault := account("alice"), account("vault")

	cp := bank.Checkpoint()
	require.ErrorIs(t, bank.Mint(alice, usdc, sdkmath.NewInt(100)), ErrCheckpointOpen)
	require.ErrorIs(t, bank.Fund(alice, vault, usdc, sdkmath.NewInt(100)), ErrCheckpointOpen)
	bank.RevertTo(cp)

	require.NoError(t, bank.Fund(alice, vault, usdc, sdkmath.NewInt(100)))
	require.NoError(t, bank.Fund(alice, vault, usdc, sdkmath.NewInt(50)))
	require.Equal(t, int64(150), balance(t, bank, alice, usdc))
	require.Equal(t, int64(150), bank.Allowance(alice, vault, usdc).Int64())

	// A committed checkpoint lifts the restriction again.
	cp = bank.Checkpoint()
	require.NoError(t, bank.Transfer(ctx, alice, vault, usdc, sdkmath.NewInt(10)))
	bank.Commit(cp)
	require.NoError(t, bank.Mint(alice, usdc, sdkmath.NewInt(10)))
	require.Equal(t, int64(150), balance(t, bank, alice, usdc))
}

func newFundedPool(t *testing.T, bank *Bank) *Pool {
	t.Helper()
	pool, err := NewPool(ModuleAddress("amm"), bank, 30)
	require.NoError(t, err)
	require.NoError(t, bank.Mint(pool.Address(), usdc, sdkmath.NewInt(1_000_000)))
	require.NoError(t, bank.Mint(pool.Address(), atom, sdkmath.NewInt(1_000_000)))
	return pool
}

func TestPoolSwapExact(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	pool := newFundedPool(t, bank)
	trader := account("trader")
	require.NoError(t, bank.Mint(trader, usdc, sdkmath.NewInt(1_000)))
	require.NoError(t, bank.Approve(ctx, trader, pool.Address(), usdc, sdkmath.NewInt(1_000)))

	quote, err := pool.Quote(ctx, sdkmath.NewInt(1_000), []string{usdc, atom})
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(996), quote)

	out, err := pool.SwapExact(ctx, trader, types.SwapRequest{
		AmountIn:     sdkmath.NewInt(1_000),
		MinAmountOut: sdkmath.NewInt(990),
		Path:         []string{usdc, atom},
		Deadline:     time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, quote, out)
	require.Equal(t, int64(0), balance(t, bank, trader, usdc))
	require.Equal(t, int64(996), balance(t, bank, trader, atom))
	require.Equal(t, int64(1_001_000), balance(t, bank, pool.Address(), usdc))
}

func TestPoolSwapFailuresMoveNothing(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	pool := newFundedPool(t, bank)
	trader := account("trader")
	require.NoError(t, bank.Mint(trader, usdc, sdkmath.NewInt(1_000)))
	require.NoError(t, bank.Approve(ctx, trader, pool.Address(), usdc, sdkmath.NewInt(1_000)))

	req := types.SwapRequest{
		AmountIn:     sdkmath.NewInt(1_000),
		MinAmountOut: sdkmath.NewInt(997),
		Path:         []string{usdc, atom},
	}
	_, err := pool.SwapExact(ctx, trader, req)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	req.MinAmountOut = sdkmath.ZeroInt()
	req.Deadline = time.Now().Add(-time.Second)
	_, err = pool.SwapExact(ctx, trader, req)
	require.ErrorIs(t, err, ErrDeadlineExpired)

	req.Deadline = time.Time{}
	req.Path = []string{usdc}
	_, err = pool.SwapExact(ctx, trader, req)
	require.ErrorIs(t, err, ErrInvalidPath)

	require.Equal(t, int64(1_000), balance(t, bank, trader, usdc))
}

func newLendingPool(t *testing.T, bank *Bank) *LendingPool {
	t.Helper()
	market, err := NewLendingPool(ModuleAddress("lending"), bank, 8_000)
	require.NoError(t, err)
	require.NoError(t, bank.Mint(market.Address(), atom, sdkmath.NewInt(1_000_000)))
	return market
}

func TestLendingSupplyBorrowRepay(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := newLendingPool(t, bank)
	user := account("user")
	require.NoError(t, bank.Mint(user, usdc, sdkmath.NewInt(1_000)))
	require.NoError(t, bank.Approve(ctx, user, market.Address(), usdc, sdkmath.NewInt(1_000)))

	require.NoError(t, market.Supply(ctx, user, usdc, sdkmath.NewInt(1_000), user, 0))
	require.Equal(t, sdkmath.NewInt(1_000), market.Supplied(user, usdc))

	hf, err := market.HealthFactor(ctx, user)
	require.NoError(t, err)
	require.Equal(t, NoDebtHealthFactor, hf)

	// 1000 collateral at 80% threshold supports 800 of debt.
	err = market.Borrow(ctx, user, atom, sdkmath.NewInt(801), types.RateModeVariable, 0, user)
	require.ErrorIs(t, err, ErrHealthFactorTooLow)
	require.True(t, market.Debt(user, atom, types.RateModeVariable).IsZero())

	require.NoError(t, market.Borrow(ctx, user, atom, sdkmath.NewInt(400), types.RateModeVariable, 0, user))
	require.Equal(t, int64(400), balance(t, bank, user, atom))

	hf, err = market.HealthFactor(ctx, user)
	require.NoError(t, err)
	require.Equal(t, healthScale.MulRaw(2), hf)

	err = market.Borrow(ctx, user, atom, sdkmath.NewInt(1), types.RateModeNone, 0, user)
	require.ErrorIs(t, err, ErrInvalidRateMode)

	_, err = market.Withdraw(ctx, user, usdc, sdkmath.NewInt(600), user)
	require.ErrorIs(t, err, ErrHealthFactorTooLow)

	require.NoError(t, bank.Approve(ctx, user, market.Address(), atom, sdkmath.NewInt(1_000)))
	repaid, err := market.Repay(ctx, user, atom, sdkmath.NewInt(1_000), types.RateModeVariable, user)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(400), repaid)

	_, err = market.Repay(ctx, user, atom, sdkmath.NewInt(1), types.RateModeVariable, user)
	require.ErrorIs(t, err, ErrNoDebt)

	withdrawn, err := market.Withdraw(ctx, user, usdc, sdkmath.NewInt(1_000), user)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000), withdrawn)
	require.Equal(t, int64(1_000), balance(t, bank, user, usdc))
}

func TestLendingPositionValueAndRevert(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := newLendingPool(t, bank)
	require.NoError(t, bank.Mint(market.Address(), usdc, sdkmath.NewInt(1_000)))
	user := account("user")
	require.NoError(t, bank.Mint(user, usdc, sdkmath.NewInt(500)))
	require.NoError(t, bank.Approve(ctx, user, market.Address(), usdc, sdkmath.NewInt(500)))
	require.NoError(t, market.Supply(ctx, user, usdc, sdkmath.NewInt(500), user, 0))

	cp := market.Checkpoint()
	bankCP := bank.Checkpoint()
	require.NoError(t, market.Borrow(ctx, user, usdc, sdkmath.NewInt(100), types.RateModeStable, 0, user))

	value, err := market.PositionValue(ctx, user, usdc)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(400), value)

	market.RevertTo(cp)
	bank.RevertTo(bankCP)
	value, err = market.PositionValue(ctx, user, usdc)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500), value)
	require.Equal(t, int64(0), balance(t, bank, user, usdc))
}

func TestFixedOracleAndStrategy(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)
	oracle := NewFixedOracle(sdkmath.NewInt(42), at)
	price, updated, err := oracle.LatestPrice(ctx)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(42), price)
	require.Equal(t, at, updated)

	oracle.SetError(context.DeadlineExceeded)
	_, _, err = oracle.LatestPrice(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	strategy := NewStaticStrategy(nil)
	require.NoError(t, strategy.Execute(ctx, sdkmath.NewInt(1), sdkmath.NewInt(2)))
	require.Equal(t, []StrategyCall{{Current: sdkmath.NewInt(1), Target: sdkmath.NewInt(2)}}, strategy.Calls())
}
