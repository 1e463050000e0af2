package config

import (
	"errors"

	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeRPC is the Tendermint RPC endpoint for the Elys node, used for AMM swap estimates.
	NodeRPC string
	// NodeGRPC is the gRPC endpoint for the Elys node, used for tier module prices.
	NodeGRPC string
	// PriceDenom is the denom whose tier price the oracle reports. Defaults to BaseDenom.
	PriceDenom string
	// LiquidityAccount settles quoted swaps in live mode.
	LiquidityAccount sdk.AccAddress
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go. The node endpoints are only
// required in live mode.
func loadEndpointConfig() error {
	var err error

	NodeRPC = getEnvOrDefault("NODE_RPC", "")
	NodeGRPC = getEnvOrDefault("NODE_GRPC", "")
	PriceDenom = getEnvOrDefault("PRICE_DENOM", BaseDenom)
	if LiquidityAccount, err = getEnvAsAddressOrDefault("LIQUIDITY_ACCOUNT", authtypes.NewModuleAddress("hfvault-liquidity")); err != nil {
		return err
	}

	if Mode == ModeLive {
		if NodeRPC == "" {
			return errors.New("environment variable NODE_RPC is required in live mode")
		}
		if NodeGRPC == "" {
			return errors.New("environment variable NODE_GRPC is required in live mode")
		}
	}

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Str("NodeGRPC", NodeGRPC).
		Str("PriceDenom", PriceDenom).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
