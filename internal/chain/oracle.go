package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/query"
	tier "github.com/elys-network/elys/v6/x/tier/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/elys-network/hfvault/internal/logger"
)

const pricePageLimit = uint64(500)

var ErrPriceNotFound = errors.New("price not found")

// TierPriceClient is the part of the tier query client used for prices.
type TierPriceClient interface {
	GetAllPrices(ctx context.Context, in *tier.QueryGetAllPricesRequest, opts ...grpc.CallOption) (*tier.QueryGetAllPricesResponse, error)
}

// TierOracle reports the price of one denom from the tier module. Prices are returned as the
// 18-decimal fixed-point integer of the chain's decimal. The tier module does not expose an
// update time, so the query time is reported.
type TierOracle struct {
	client TierPriceClient
	denom  string
	clock  func() time.Time
	logger zerolog.Logger
}

// NewTierOracle creates an oracle for denom. A nil clock means time.Now.
func NewTierOracle(client TierPriceClient, denom string, clock func() time.Time) (*TierOracle, error) {
	if client == nil {
		return nil, errors.New("tier client cannot be nil")
	}
	if strings.TrimSpace(denom) == "" {
		return nil, errors.New("price denom cannot be empty")
	}
	if clock == nil {
		clock = time.Now
	}
	return &TierOracle{
		client: client,
		denom:  denom,
		clock:  clock,
		logger: logger.GetForComponent("tier_oracle"),
	}, nil
}

// NewTierOracleFromConn creates an oracle using the tier query client on conn.
func NewTierOracleFromConn(conn *grpc.ClientConn, denom string) (*TierOracle, error) {
	if conn == nil {
		return nil, errors.New("GRPC client cannot be nil")
	}
	return NewTierOracle(tier.NewQueryClient(conn), denom, nil)
}

// LatestPrice returns the oracle price of the configured denom, falling back to the AMM price
// when the oracle has none.
func (o *TierOracle) LatestPrice(ctx context.Context) (sdkmath.Int, time.Time, error) {
	prices, err := o.FetchAllPrices(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), time.Time{}, err
	}
	price, ok := prices[o.denom]
	if !ok {
		return sdkmath.ZeroInt(), time.Time{}, fmt.Errorf("%w for %s", ErrPriceNotFound, o.denom)
	}

	var chosen sdkmath.LegacyDec
	switch {
	case positive(price.OraclePrice):
		chosen = price.OraclePrice
	case positive(price.AmmPrice):
		chosen = price.AmmPrice
		o.logger.Warn().Str("denom", o.denom).Msg("No oracle price, using AMM price")
	default:
		return sdkmath.ZeroInt(), time.Time{}, fmt.Errorf("%w for %s: oracle and AMM prices are not positive", ErrPriceNotFound, o.denom)
	}

	o.logger.Debug().Str("denom", o.denom).Str("price", chosen.String()).Msg("Fetched tier price")
	return sdkmath.NewIntFromBigInt(chosen.BigInt()), o.clock(), nil
}

// FetchAllPrices pages through the tier module's prices and returns them keyed by denom.
func (o *TierOracle) FetchAllPrices(ctx context.Context) (map[string]*tier.Price, error) {
	priceMap := make(map[string]*tier.Price)
	var nextKey []byte

	for {
		response, err := o.client.GetAllPrices(ctx, &tier.QueryGetAllPricesRequest{
			Pagination: &query.PageRequest{
				Key:   nextKey,
				Limit: pricePageLimit,
			},
		})
		if err != nil {
			o.logger.Error().Err(err).Msg("Failed to fetch token prices from tier module")
			return nil, fmt.Errorf("tier module price query failed: %w", err)
		}
		if response == nil {
			return nil, errors.New("nil response from tier module")
		}

		for _, price := range response.Prices {
			if price == nil || strings.TrimSpace(price.Denom) == "" {
				return nil, errors.New("received invalid price entry from tier module")
			}
			priceMap[price.Denom] = price
		}

		if response.Pagination == nil || len(response.Pagination.NextKey) == 0 {
			break
		}
		nextKey = response.Pagination.NextKey
		o.logger.Debug().
			Int("fetchedPrices", len(response.Prices)).
			Int("totalPricesSoFar", len(priceMap)).
			Msg("Fetched page of token prices, continuing pagination")
	}
	return priceMap, nil
}

func positive(d sdkmath.LegacyDec) bool {
	return !d.IsNil() && d.IsPositive()
}
