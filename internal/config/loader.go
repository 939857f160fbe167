package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WAVEMINT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WAVEMINT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WAVEMINT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WAVEMINT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WAVEMINT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WAVEMINT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WAVEMINT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WAVEMINT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WAVEMINT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WAVEMINT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WAVEMINT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WAVEMINT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WAVEMINT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAVEMINT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAVEMINT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAVEMINT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WAVEMINT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WAVEMINT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WAVEMINT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAVEMINT_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAVEMINT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAVEMINT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAVEMINT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WAVEMINT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WAVEMINT_S3_FORCE_PATH_STYLE")

	// ── Curve ──
	setUint32(&cfg.Curve.FeeBps, "WAVEMINT_CURVE_FEE_BPS")
	setUint64(&cfg.Curve.GraduationThreshold, "WAVEMINT_CURVE_GRADUATION_THRESHOLD")

	// ── Verifier ──
	setStr(&cfg.Verifier.Endpoint, "WAVEMINT_VERIFIER_ENDPOINT")
	setStr(&cfg.Verifier.CustodialAccount, "WAVEMINT_VERIFIER_CUSTODIAL_ACCOUNT")
	setStr(&cfg.Verifier.TreasuryEndpoint, "WAVEMINT_VERIFIER_TREASURY_ENDPOINT")
	setDuration(&cfg.Verifier.Timeout, "WAVEMINT_VERIFIER_TIMEOUT")
	setInt(&cfg.Verifier.MaxTries, "WAVEMINT_VERIFIER_MAX_TRIES")

	// ── Settlement ──
	setInt(&cfg.Settlement.TraderRateLimit, "WAVEMINT_SETTLEMENT_TRADER_RATE_LIMIT")
	setDuration(&cfg.Settlement.TraderRateWindow, "WAVEMINT_SETTLEMENT_TRADER_RATE_WINDOW")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WAVEMINT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WAVEMINT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WAVEMINT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WAVEMINT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "WAVEMINT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "WAVEMINT_SERVER_RATE_LIMIT_WINDOW")

	// ── Export ──
	setBool(&cfg.Export.Enabled, "WAVEMINT_EXPORT_ENABLED")
	setStr(&cfg.Export.Cron, "WAVEMINT_EXPORT_CRON")
	setStr(&cfg.Export.Prefix, "WAVEMINT_EXPORT_PREFIX")

	// ── Top-level ──
	setStr(&cfg.Mode, "WAVEMINT_MODE")
	setStr(&cfg.LogLevel, "WAVEMINT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
