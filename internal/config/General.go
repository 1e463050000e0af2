package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog/log"
)

const (
	ModeSimulation = "simulation"
	ModeLive       = "live"

	// Bech32Prefix is the account address prefix of the Elys chain.
	Bech32Prefix = "elys"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects the collaborators: in-memory venue and oracle, or chain quotes and prices.
	Mode string

	// BaseDenom is the denom shares are issued against.
	BaseDenom string
	// VaultAddress is the vault's account. Defaults to the "hfvault" module address.
	VaultAddress sdk.AccAddress
	// Owner receives the OWNER and ADMIN roles.
	Owner sdk.AccAddress
	// Strategy is the initial STRATEGY holder, optional.
	Strategy sdk.AccAddress

	EntryFeeBasisPoints uint64
	ExitFeeBasisPoints  uint64
	// Empty recipients mean fees stay in the vault.
	EntryFeeRecipient sdk.AccAddress
	ExitFeeRecipient  sdk.AccAddress

	// TargetHealthFactor is scaled by 1e18. The env value is a decimal such as "1.5".
	TargetHealthFactor sdkmath.Int
	// MaxPriceAge rejects older oracle prices; zero disables the check.
	MaxPriceAge time.Duration
	// RebalanceInterval is the operator loop period.
	RebalanceInterval time.Duration
	// ParamsConfigName names the persisted vault parameter set.
	ParamsConfigName string
	// FaucetEnabled exposes the paper-ledger funding route. Defaults to on in simulation mode.
	FaucetEnabled bool

	LogLevel  string
	LogFormat string // "console" or "json"
	LogFile   string
	WebPort   string
)

var prefixOnce sync.Once

// ConfigureAddressPrefix sets the Elys bech32 prefixes on the SDK config once per process.
func ConfigureAddressPrefix() {
	prefixOnce.Do(func() {
		cfg := sdk.GetConfig()
		cfg.SetBech32PrefixForAccount(Bech32Prefix, Bech32Prefix+sdk.PrefixPublic)
		cfg.SetBech32PrefixForValidator(Bech32Prefix+sdk.PrefixValidator+sdk.PrefixOperator, Bech32Prefix+sdk.PrefixValidator+sdk.PrefixOperator+sdk.PrefixPublic)
		cfg.SetBech32PrefixForConsensusNode(Bech32Prefix+sdk.PrefixValidator+sdk.PrefixConsensus, Bech32Prefix+sdk.PrefixValidator+sdk.PrefixConsensus+sdk.PrefixPublic)
	})
}

// LoadConfig loads configuration from environment variables and sets the global config vars.
// VAULT_OWNER is required; every other key has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")
	ConfigureAddressPrefix()

	var err error

	Mode = strings.ToLower(getEnvOrDefault("VAULT_MODE", ModeSimulation))
	if Mode != ModeSimulation && Mode != ModeLive {
		return fmt.Errorf("environment variable VAULT_MODE must be %q or %q, got: %s", ModeSimulation, ModeLive, Mode)
	}

	BaseDenom = getEnvOrDefault("VAULT_BASE_DENOM", "uusdc")
	if err := sdk.ValidateDenom(BaseDenom); err != nil {
		return fmt.Errorf("environment variable VAULT_BASE_DENOM: %w", err)
	}

	if VaultAddress, err = getEnvAsAddressOrDefault("VAULT_ADDRESS", authtypes.NewModuleAddress("hfvault")); err != nil {
		return err
	}
	if Owner, err = getEnvAsAddress("VAULT_OWNER"); err != nil {
		return err
	}
	if Strategy, err = getEnvAsAddressOrDefault("VAULT_STRATEGY", nil); err != nil {
		return err
	}

	if EntryFeeBasisPoints, err = getEnvAsUint64OrDefault("ENTRY_FEE_BPS", 0); err != nil {
		return err
	}
	if ExitFeeBasisPoints, err = getEnvAsUint64OrDefault("EXIT_FEE_BPS", 0); err != nil {
		return err
	}
	if EntryFeeRecipient, err = getEnvAsAddressOrDefault("ENTRY_FEE_RECIPIENT", nil); err != nil {
		return err
	}
	if ExitFeeRecipient, err = getEnvAsAddressOrDefault("EXIT_FEE_RECIPIENT", nil); err != nil {
		return err
	}

	if TargetHealthFactor, err = getEnvAsScaledDec("TARGET_HEALTH_FACTOR", "1.0"); err != nil {
		return err
	}
	if MaxPriceAge, err = getEnvAsDurationOrDefault("MAX_PRICE_AGE", 10*time.Minute); err != nil {
		return err
	}
	if RebalanceInterval, err = getEnvAsDurationOrDefault("REBALANCE_INTERVAL", 10*time.Minute); err != nil {
		return err
	}
	if RebalanceInterval <= 0 {
		return errors.New("environment variable REBALANCE_INTERVAL must be positive")
	}
	ParamsConfigName = getEnvOrDefault("VAULT_PARAMS_CONFIG", "default")
	if FaucetEnabled, err = getEnvAsBoolOrDefault("FAUCET_ENABLED", Mode == ModeSimulation); err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")
	LogFile = getEnvOrDefault("LOG_FILE", "")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}
	// Load database configuration
	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("BaseDenom", BaseDenom).
		Str("VaultAddress", VaultAddress.String()).
		Str("Owner", Owner.String()).
		Uint64("EntryFeeBasisPoints", EntryFeeBasisPoints).
		Uint64("ExitFeeBasisPoints", ExitFeeBasisPoints).
		Str("TargetHealthFactor", TargetHealthFactor.String()).
		Bool("FaucetEnabled", FaucetEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to defaultValue.
func getEnvOrDefault(key, defaultValue string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64. Returns error if invalid.
func getEnvAsUint64OrDefault(key string, defaultValue uint64) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if invalid.
func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a boolean, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault parses a Go duration such as "90s" or "10m".
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	if value < 0 {
		return 0, errors.New("environment variable " + key + " cannot be negative")
	}
	return value, nil
}

// getEnvAsScaledDec parses a decimal and returns it scaled by 1e18.
func getEnvAsScaledDec(key, defaultValue string) (sdkmath.Int, error) {
	valueStr := getEnvOrDefault(key, defaultValue)
	dec, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("environment variable %s must be a decimal, got: %s: %w", key, valueStr, err)
	}
	if !dec.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("environment variable %s must be positive, got: %s", key, valueStr)
	}
	return sdkmath.NewIntFromBigInt(dec.BigInt()), nil
}

// getEnvAsAddress retrieves a bech32 account address. Returns error if not set or invalid.
func getEnvAsAddress(key string) (sdk.AccAddress, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return nil, err
	}
	addr, err := sdk.AccAddressFromBech32(valueStr)
	if err != nil {
		return nil, fmt.Errorf("environment variable %s must be a valid %s address: %w", key, Bech32Prefix, err)
	}
	return addr, nil
}

func getEnvAsAddressOrDefault(key string, defaultValue sdk.AccAddress) (sdk.AccAddress, error) {
	if _, err := getEnv(key); err != nil {
		return defaultValue, nil
	}
	return getEnvAsAddress(key)
}
