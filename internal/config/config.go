// Package config loads typed indexer configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPasswd   string `envconfig:"DB_PASSWD"`
	DBDatabase string `envconfig:"DB_DATABASE" default:"brc20"`
	DBSSL      bool   `envconfig:"DB_SSL" default:"false"`

	SqlitePath string `envconfig:"SQLITE_DB_PATH" default:"./data/brc20.sqlite"`

	OPIDBURL string `envconfig:"OPI_DB_URL"`

	NetworkType string `envconfig:"NETWORK_TYPE" default:"mainnet"`

	BitcoinRPCURL    string `envconfig:"BITCOIN_RPC_URL" default:"http://127.0.0.1:8332"`
	BitcoinRPCUser   string `envconfig:"BITCOIN_RPC_USER"`
	BitcoinRPCPasswd string `envconfig:"BITCOIN_RPC_PASSWD"`
	BitcoinRPCLimit  int    `envconfig:"BITCOIN_RPC_LIMIT" default:"12"`

	BRC20ProgEnabled  bool   `envconfig:"BRC20_PROG_ENABLED" default:"false"`
	BRC20ProgRPCURL   string `envconfig:"BRC20_PROG_RPC_URL" default:"http://127.0.0.1:18545"`
	BRC20ProgUser     string `envconfig:"BRC20_PROG_RPC_USER"`
	BRC20ProgPassword string `envconfig:"BRC20_PROG_RPC_PASSWORD"`

	ReportToIndexer bool   `envconfig:"REPORT_TO_INDEXER" default:"false"`
	ReportURL       string `envconfig:"REPORT_URL"`
	ReportRetries   int    `envconfig:"REPORT_RETRIES" default:"10"`
	ReportName      string `envconfig:"REPORT_NAME" default:"brc20idx"`

	OperationMode  string `envconfig:"OPERATION_MODE" default:"full"`
	NonInteractive bool   `envconfig:"NON_INTERACTIVE" default:"false"`

	APIHost string `envconfig:"API_HOST" default:"127.0.0.1"`
	APIPort int    `envconfig:"API_PORT" default:"11030"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"LOG_DIR" default:"./logs"`

	SwapModulePkScriptHex string `envconfig:"SWAP_MODULE_PKSCRIPT_HEX"`
	SwapRefundPkScriptHex string `envconfig:"SWAP_REFUND_PKSCRIPT_HEX"`
}

// Load reads configuration from a .env file (if present) then from environment variables.
// Real environment variables take precedence over .env values, matching godotenv's
// non-overriding Load behavior.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	switch c.NetworkType {
	case "mainnet", "testnet", "testnet4", "signet", "regtest":
	default:
		return fmt.Errorf("%w: unknown network type %q", ErrInvalidConfig, c.NetworkType)
	}

	switch c.OperationMode {
	case "full", "light":
	default:
		return fmt.Errorf("%w: operation mode must be \"full\" or \"light\", got %q", ErrInvalidConfig, c.OperationMode)
	}

	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("%w: API port must be 1-65535, got %d", ErrInvalidConfig, c.APIPort)
	}

	if c.BitcoinRPCLimit < 1 {
		return fmt.Errorf("%w: bitcoin RPC limit must be >= 1, got %d", ErrInvalidConfig, c.BitcoinRPCLimit)
	}

	if c.ReportToIndexer && c.ReportURL == "" {
		return fmt.Errorf("%w: REPORT_URL required when REPORT_TO_INDEXER is set", ErrInvalidConfig)
	}

	return nil
}
