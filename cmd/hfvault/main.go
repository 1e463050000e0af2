package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/hfvault/internal/chain"
	"github.com/elys-network/hfvault/internal/collab"
	"github.com/elys-network/hfvault/internal/config"
	"github.com/elys-network/hfvault/internal/logger"
	"github.com/elys-network/hfvault/internal/memory"
	"github.com/elys-network/hfvault/internal/operator"
	"github.com/elys-network/hfvault/internal/state"
	"github.com/elys-network/hfvault/internal/types"
	"github.com/elys-network/hfvault/internal/vault"
	"github.com/elys-network/hfvault/internal/web"
)

const (
	// Inventory minted to the in-memory venue, lending market and liquidity account.
	seedLiquidity = 1_000_000_000_000

	ammFeeBasisPoints       = 30
	liquidationThresholdBps = 8_000
	shutdownTimeout         = 10 * time.Second
)

// collaborators are the external systems the vault is wired to for one run mode.
type collaborators struct {
	ledger *memory.Bank
	venue  collab.SwapVenue
	market *memory.LendingPool
	oracle collab.PriceOracle
	close  func()
}

// main is the entry point for the vault service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	_ = logger.InitializeWithOptions(logger.Options{
		Level:   config.LogLevel,
		JSON:    config.LogFormat == "json",
		LogFile: config.LogFile,
	})
	log.Info().Str("mode", config.Mode).Msg("HF Vault starting...")

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}
	store := state.Store{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Vault Parameters ---
	params, err := operator.LoadParameters(ctx, store, config.ParamsConfigName, types.VaultParameters{
		EntryFeeBasisPoints: config.EntryFeeBasisPoints,
		ExitFeeBasisPoints:  config.ExitFeeBasisPoints,
		EntryFeeRecipient:   recipientOrVault(config.EntryFeeRecipient),
		ExitFeeRecipient:    recipientOrVault(config.ExitFeeRecipient),
		TargetHealthFactor:  config.TargetHealthFactor,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load vault parameters")
	}
	entryRecipient, exitRecipient, err := recipients(params)
	if err != nil {
		log.Fatal().Err(err).Msg("Persisted fee recipients are invalid")
	}
	log.Info().
		Int("version", params.Version).
		Str("configName", params.ConfigName).
		Msg("Vault parameters loaded successfully.")

	// --- 3. Collaborators (with Safety Switch) ---
	var collabs *collaborators
	if config.Mode == config.ModeLive {
		log.Warn().Msg("Initializing in LIVE mode. Prices and swap quotes come from the chain; settlement stays on the paper ledger.")
		collabs, err = liveCollaborators()
	} else {
		log.Info().Msg("Initializing in SIMULATION mode with in-memory collaborators.")
		collabs, err = simulationCollaborators()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize collaborators")
	}
	defer collabs.close()

	// --- 4. Vault ---
	maxPriceAge := config.MaxPriceAge
	if config.Mode == config.ModeSimulation {
		// The simulated feed is never refreshed.
		maxPriceAge = 0
	}
	v, err := vault.New(vault.Config{
		Address:             config.VaultAddress,
		BaseDenom:           config.BaseDenom,
		Owner:               config.Owner,
		Strategy:            config.Strategy,
		Ledger:              collabs.ledger,
		Venue:               collabs.venue,
		Market:              collabs.market,
		Oracle:              collabs.oracle,
		Sink:                state.NewEventRecorder(),
		EntryFeeBasisPoints: params.EntryFeeBasisPoints,
		ExitFeeBasisPoints:  params.ExitFeeBasisPoints,
		EntryFeeRecipient:   entryRecipient,
		ExitFeeRecipient:    exitRecipient,
		TargetHealthFactor:  params.TargetHealthFactor,
		MaxPriceAge:         maxPriceAge,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}

	op, err := operator.New(operator.Config{
		Vault:      v,
		Store:      store,
		Owner:      config.Owner,
		ConfigName: config.ParamsConfigName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create operator")
	}

	// --- 5. Run ---
	webServer := web.NewWebServer(config.WebPort, v, store)
	if config.FaucetEnabled {
		webServer.EnableFaucet(collabs.ledger)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
		return webServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return webServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		op.RunLoop(gctx, config.RebalanceInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Vault service stopped with error")
		return
	}
	log.Info().Msg("Vault service stopped")
}

func simulationCollaborators() (*collaborators, error) {
	bank := memory.NewBank()
	pool, err := memory.NewPool(memory.ModuleAddress("amm"), bank, ammFeeBasisPoints)
	if err != nil {
		return nil, err
	}
	market, err := newMarket(bank)
	if err != nil {
		return nil, err
	}
	for _, denom := range seedDenoms() {
		if err := bank.Mint(pool.Address(), denom, sdkmath.NewInt(seedLiquidity)); err != nil {
			return nil, err
		}
	}
	oracle := memory.NewFixedOracle(sdkmath.NewInt(1_000_000_000_000_000_000), time.Now())
	return &collaborators{ledger: bank, venue: pool, market: market, oracle: oracle, close: func() {}}, nil
}

func liveCollaborators() (*collaborators, error) {
	grpcEndpoint := config.NodeGRPC
	var creds grpc.DialOption
	if strings.Contains(grpcEndpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcClient, err := grpc.NewClient(grpcEndpoint, creds)
	if err != nil {
		return nil, err
	}
	log.Info().Str("endpoint", grpcEndpoint).Msg("gRPC client created")

	registry, err := chain.NewAssetRegistryFromConn(grpcClient)
	if err != nil {
		grpcClient.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := registry.RequireDenoms(ctx, seedDenoms()...); err != nil {
		grpcClient.Close()
		return nil, err
	}

	oracle, err := chain.NewTierOracleFromConn(grpcClient, config.PriceDenom)
	if err != nil {
		grpcClient.Close()
		return nil, err
	}

	bank := memory.NewBank()
	quoter := chain.NewAMMQuoter(chain.NewABCIClient(config.NodeRPC, &http.Client{Timeout: 20 * time.Second}), config.VaultAddress.String())
	venue, err := chain.NewQuotedVenue(memory.ModuleAddress("amm"), config.LiquidityAccount, bank, quoter, nil)
	if err != nil {
		grpcClient.Close()
		return nil, err
	}
	market, err := newMarket(bank)
	if err != nil {
		grpcClient.Close()
		return nil, err
	}
	for _, denom := range seedDenoms() {
		if err := bank.Mint(config.LiquidityAccount, denom, sdkmath.NewInt(seedLiquidity)); err != nil {
			grpcClient.Close()
			return nil, err
		}
	}
	return &collaborators{
		ledger: bank,
		venue:  venue,
		market: market,
		oracle: oracle,
		close:  func() { grpcClient.Close() },
	}, nil
}

func newMarket(bank *memory.Bank) (*memory.LendingPool, error) {
	market, err := memory.NewLendingPool(memory.ModuleAddress("lending"), bank, liquidationThresholdBps)
	if err != nil {
		return nil, err
	}
	if err := bank.Mint(market.Address(), config.BaseDenom, sdkmath.NewInt(seedLiquidity)); err != nil {
		return nil, err
	}
	return market, nil
}

func seedDenoms() []string {
	if config.PriceDenom == config.BaseDenom {
		return []string{config.BaseDenom}
	}
	return []string{config.BaseDenom, config.PriceDenom}
}

// recipientOrVault mirrors the vault default so the first persisted version matches the
// configuration the vault reports.
func recipientOrVault(addr sdk.AccAddress) string {
	if addr.Empty() {
		return config.VaultAddress.String()
	}
	return addr.String()
}

// recipients parses the persisted fee recipients; empty values leave the vault default.
func recipients(params types.VaultParameters) (entry, exit sdk.AccAddress, err error) {
	if params.EntryFeeRecipient != "" {
		if entry, err = sdk.AccAddressFromBech32(params.EntryFeeRecipient); err != nil {
			return nil, nil, err
		}
	}
	if params.ExitFeeRecipient != "" {
		if exit, err = sdk.AccAddressFromBech32(params.ExitFeeRecipient); err != nil {
			return nil, nil, err
		}
	}
	return entry, exit, nil
}
