// Package config defines the top-level configuration for the wavemint
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WAVEMINT_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Curve      CurveConfig      `toml:"curve"`
	Verifier   VerifierConfig   `toml:"verifier"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Export     ExportConfig     `toml:"export"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CurveConfig holds the fee schedule and graduation parameters applied to
// every curve.
type CurveConfig struct {
	// FeeBps is the trade fee in basis points, charged on both sides.
	FeeBps uint32 `toml:"fee_bps"`

	// GraduationThreshold is the sol reserve level (lamports) at which a
	// curve graduates to external venues. Zero disables graduation.
	GraduationThreshold uint64 `toml:"graduation_threshold"`
}

// VerifierConfig holds the transfer verifier parameters.
type VerifierConfig struct {
	// Endpoint is the Solana JSON-RPC endpoint used for getTransaction.
	Endpoint string `toml:"endpoint"`

	// CustodialAccount is the platform account buys must credit.
	CustodialAccount string `toml:"custodial_account"`

	// TreasuryEndpoint is the custodial treasury service used to disburse
	// vesting claims. Empty disables outbound disbursement.
	TreasuryEndpoint string `toml:"treasury_endpoint"`

	// Timeout bounds one verification round trip.
	Timeout duration `toml:"timeout"`

	// MaxTries is the RPC attempt budget per verification.
	MaxTries int `toml:"max_tries"`
}

// SettlementConfig holds the per-trader submission limits.
type SettlementConfig struct {
	TraderRateLimit  int      `toml:"trader_rate_limit"`
	TraderRateWindow duration `toml:"trader_rate_window"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// ExportConfig holds the ledger snapshot export parameters.
type ExportConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
	Prefix  string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "wavemint",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "wavemint-ledger",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Curve: CurveConfig{
			FeeBps:              100,
			GraduationThreshold: 85_000_000_000,
		},
		Verifier: VerifierConfig{
			Endpoint: "https://api.mainnet-beta.solana.com",
			Timeout:  duration{15 * time.Second},
			MaxTries: 3,
		},
		Settlement: SettlementConfig{
			TraderRateLimit:  30,
			TraderRateWindow: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Export: ExportConfig{
			Enabled: false,
			Cron:    "30 0 * * *",
			Prefix:  "ledger",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"export": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, export, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when ledger exports are on.
	if c.Export.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when export is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when export is enabled")
		}
		if c.Export.Cron == "" {
			errs = append(errs, "export: cron must not be empty when export is enabled")
		}
	}

	// Curve
	if c.Curve.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("curve: fee_bps must be below 10000, got %d", c.Curve.FeeBps))
	}

	// Verifier
	if c.Verifier.Endpoint == "" {
		errs = append(errs, "verifier: endpoint must not be empty")
	}
	if c.Verifier.CustodialAccount == "" {
		errs = append(errs, "verifier: custodial_account must not be empty")
	}
	if c.Verifier.Timeout.Duration <= 0 {
		errs = append(errs, "verifier: timeout must be positive")
	}
	if c.Verifier.MaxTries < 1 {
		errs = append(errs, "verifier: max_tries must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
