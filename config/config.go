// Package config loads the floatifyd service configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	floatify "github.com/floatify/floatify/go"
	"github.com/floatify/floatify/go/units"
)

// Prefix is prepended to every environment key.
const Prefix = "FLOATIFY_"

// Environment keys, without Prefix.
const (
	KeyChainID         = "CHAIN_ID"
	KeyListenAddr      = "LISTEN_ADDR"
	KeyLogStage        = "LOG_STAGE"
	KeyLogLevel        = "LOG_LEVEL"
	KeyRelayerKey      = "RELAYER_KEY"
	KeyOperatorKey     = "OPERATOR_KEY"
	KeyKeeperInterval  = "KEEPER_INTERVAL"
	KeyMaxSlippageBps  = "MAX_SLIPPAGE_BPS"
	KeyRelayGasPrice   = "RELAY_GAS_PRICE"
	KeyRelayFeePercent = "RELAY_FEE_PERCENT"
	KeyIdempotencyTTL  = "IDEMPOTENCY_TTL"
	KeyRelayDeposit    = "RELAY_DEPOSIT"
	KeyAdminAPIKey     = "ADMIN_API_KEY"
)

// Config validation errors
var (
	ErrMissingRelayerKey  = errors.New("config: relayer key is required")
	ErrMissingOperatorKey = errors.New("config: operator key is required")
	ErrInvalidChainID     = errors.New("config: chain id must be positive")
	ErrInvalidSlippage    = errors.New("config: max slippage must be below 10000 bps")
	ErrInvalidInterval    = errors.New("config: keeper interval must be positive")
	ErrInvalidTTL         = errors.New("config: idempotency ttl must be positive")
)

// Config is the service configuration.
type Config struct {
	ChainID    *big.Int
	ListenAddr string
	LogStage   string
	LogLevel   string

	// RelayerKey signs nothing on its own; its address submits relayed
	// calls and permits and collects relay charges.
	RelayerKey string

	// OperatorKey is the deployment admin, the Forwarder floatify address.
	OperatorKey string

	KeeperInterval time.Duration
	MaxSlippageBps uint64

	// RelayGasPrice is in wei.
	RelayGasPrice   *big.Int
	RelayFeePercent uint64
	IdempotencyTTL  time.Duration

	// RelayDeposit funds the Swapper's relay deposit at bootstrap, in wei.
	RelayDeposit *big.Int

	// AdminAPIKey authenticates the admin routes. Empty disables them.
	AdminAPIKey string
}

// Default returns the configuration used when no key is set.
func Default() *Config {
	return &Config{
		ChainID:         big.NewInt(1337),
		ListenAddr:      ":4022",
		LogStage:        "dev",
		LogLevel:        "info",
		KeeperInterval:  time.Minute,
		MaxSlippageBps:  floatify.DefaultMaxSlippageBps,
		RelayGasPrice:   big.NewInt(1e9),
		RelayFeePercent: 10,
		IdempotencyTTL:  5 * time.Minute,
		RelayDeposit:    big.NewInt(1e18),
	}
}

// Load reads envFiles (".env" when none is given; a missing file is not an
// error) into the process environment without overriding it, then builds
// the configuration from the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(Prefix + key)
		return v, ok && v != ""
	}

	if v, ok := get(KeyChainID); ok {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%s%s: invalid integer %q", Prefix, KeyChainID, v)
		}
		c.ChainID = id
	}
	if v, ok := get(KeyListenAddr); ok {
		c.ListenAddr = v
	}
	if v, ok := get(KeyLogStage); ok {
		c.LogStage = v
	}
	if v, ok := get(KeyLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := get(KeyRelayerKey); ok {
		c.RelayerKey = v
	}
	if v, ok := get(KeyOperatorKey); ok {
		c.OperatorKey = v
	}
	if v, ok := get(KeyAdminAPIKey); ok {
		c.AdminAPIKey = v
	}

	var err error
	parseDuration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok && err == nil {
			if *dst, err = time.ParseDuration(v); err != nil {
				err = fmt.Errorf("%s%s: %w", Prefix, key, err)
			}
		}
	}
	parseUint := func(key string, dst *uint64) {
		if v, ok := get(key); ok && err == nil {
			if *dst, err = strconv.ParseUint(v, 10, 64); err != nil {
				err = fmt.Errorf("%s%s: %w", Prefix, key, err)
			}
		}
	}
	parseAmount := func(key string, decimals uint8, dst **big.Int) {
		if v, ok := get(key); ok && err == nil {
			if *dst, err = units.Parse(v, decimals); err != nil {
				err = fmt.Errorf("%s%s: %w", Prefix, key, err)
			}
		}
	}
	parseDuration(KeyKeeperInterval, &c.KeeperInterval)
	parseDuration(KeyIdempotencyTTL, &c.IdempotencyTTL)
	parseUint(KeyMaxSlippageBps, &c.MaxSlippageBps)
	parseUint(KeyRelayFeePercent, &c.RelayFeePercent)
	// Gas price is configured in gwei, the deposit in ether.
	parseAmount(KeyRelayGasPrice, 9, &c.RelayGasPrice)
	parseAmount(KeyRelayDeposit, 18, &c.RelayDeposit)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.RelayerKey == "" {
		return ErrMissingRelayerKey
	}
	if c.OperatorKey == "" {
		return ErrMissingOperatorKey
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return ErrInvalidChainID
	}
	if c.MaxSlippageBps >= floatify.BpsDenominator {
		return ErrInvalidSlippage
	}
	if c.KeeperInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.IdempotencyTTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
