// Package config loads server settings from the environment.
// An optional env file is read first; variables already set in the
// process environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
)

// History backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Defaults mirror the devnet sale the presale was launched with.
const (
	DefaultRPCEndpoint         = "https://api.devnet.solana.com"
	DefaultWSEndpoint          = "wss://api.devnet.solana.com"
	DefaultTreasury            = "ACF5o8USHkcexBrbuTL1KFsDhL44qyC3a9L1euW23hGP"
	DefaultUnitPrice           = "0.0375"
	DefaultRemainingAllocation = "10000000"
	DefaultHistoryDir          = "data"
	DefaultKeypairPath         = "data/keypair.json"
	DefaultHTTPAddr            = ":8080"
	DefaultCommitment          = "confirmed"

	DefaultMaxAttempts            = 3
	DefaultRetryDelay             = time.Second
	DefaultBalanceRefreshInterval = 20 * time.Second
	DefaultReconcileInterval      = time.Minute
	DefaultConfirmPollInterval    = 2 * time.Second
)

// Balance refresh interval bounds.
const (
	MinBalanceRefreshInterval = 15 * time.Second
	MaxBalanceRefreshInterval = 30 * time.Second
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all server settings.
type Config struct {
	RPCEndpoint   string
	WSEndpoint    string // empty disables websocket confirmation
	PostgresDSN   string
	ClickhouseDSN string // empty disables the attempt audit log in ClickHouse

	HistoryBackend string
	HistoryDir     string

	KeypairPath     string
	KeypairGenerate bool

	Treasury            string
	UnitPrice           decimal.Decimal
	RemainingAllocation decimal.Decimal
	MaxLamportsPerTx    uint64 // 0 disables the signer gate

	MaxAttempts            int
	RetryDelay             time.Duration
	BalanceRefreshInterval time.Duration
	ReconcileInterval      time.Duration
	ConfirmPollInterval    time.Duration
	Commitment             string

	HTTPAddr string
}

// Load reads envFile (if it exists) and then the process environment.
// An empty envFile skips file loading.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		RPCEndpoint:   getenv("SOLANA_RPC_ENDPOINT", DefaultRPCEndpoint),
		WSEndpoint:    getenv("SOLANA_WS_ENDPOINT", DefaultWSEndpoint),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),

		HistoryBackend: strings.ToLower(getenv("HISTORY_BACKEND", BackendFile)),
		HistoryDir:     getenv("HISTORY_DIR", DefaultHistoryDir),

		KeypairPath:     getenv("KEYPAIR_PATH", DefaultKeypairPath),
		KeypairGenerate: p.bool("KEYPAIR_GENERATE", true),

		Treasury:            getenv("TREASURY_ADDRESS", DefaultTreasury),
		UnitPrice:           p.decimal("UNIT_PRICE_SOL", DefaultUnitPrice),
		RemainingAllocation: p.decimal("REMAINING_ALLOCATION", DefaultRemainingAllocation),
		MaxLamportsPerTx:    p.uint64("MAX_LAMPORTS_PER_TX", 0),

		MaxAttempts:            p.int("MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryDelay:             p.duration("RETRY_DELAY", DefaultRetryDelay),
		BalanceRefreshInterval: p.duration("BALANCE_REFRESH_INTERVAL", DefaultBalanceRefreshInterval),
		ReconcileInterval:      p.duration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		ConfirmPollInterval:    p.duration("CONFIRM_POLL_INTERVAL", DefaultConfirmPollInterval),
		Commitment:             strings.ToLower(getenv("COMMITMENT", DefaultCommitment)),

		HTTPAddr: getenv("HTTP_ADDR", DefaultHTTPAddr),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if c.RPCEndpoint == "" {
		add("SOLANA_RPC_ENDPOINT is required")
	}
	if c.Treasury == "" {
		add("TREASURY_ADDRESS is required")
	}
	if !c.UnitPrice.IsPositive() {
		add("UNIT_PRICE_SOL must be positive, got %s", c.UnitPrice)
	}
	if c.RemainingAllocation.IsNegative() {
		add("REMAINING_ALLOCATION must not be negative, got %s", c.RemainingAllocation)
	}
	if c.MaxAttempts < 1 {
		add("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		add("RETRY_DELAY must not be negative, got %s", c.RetryDelay)
	}
	if c.BalanceRefreshInterval < MinBalanceRefreshInterval || c.BalanceRefreshInterval > MaxBalanceRefreshInterval {
		add("BALANCE_REFRESH_INTERVAL must be between %s and %s, got %s",
			MinBalanceRefreshInterval, MaxBalanceRefreshInterval, c.BalanceRefreshInterval)
	}
	if c.ReconcileInterval <= 0 {
		add("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}
	if c.ConfirmPollInterval <= 0 {
		add("CONFIRM_POLL_INTERVAL must be positive, got %s", c.ConfirmPollInterval)
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		add("COMMITMENT must be processed, confirmed or finalized, got %q", c.Commitment)
	}

	switch c.HistoryBackend {
	case BackendMemory:
	case BackendFile:
		if c.HistoryDir == "" {
			add("HISTORY_DIR is required for the file backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			add("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		add("HISTORY_BACKEND must be memory, file or postgres, got %q", c.HistoryBackend)
	}

	return errors.Join(errs...)
}

// Sale returns the sale configuration.
func (c *Config) Sale() domain.SaleConfig {
	return domain.SaleConfig{
		Treasury:            c.Treasury,
		UnitPrice:           c.UnitPrice,
		RemainingAllocation: c.RemainingAllocation,
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// parser collects conversion errors so all bad keys are reported together.
type parser struct {
	errs *[]error
}

func (p parser) fail(key, value string, err error) {
	*p.errs = append(*p.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err))
}

func (p parser) bool(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p parser) int(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p parser) uint64(key string, def uint64) uint64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p parser) decimal(key, def string) decimal.Decimal {
	v := getenv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, v, err)
		return decimal.Zero
	}
	return d
}
