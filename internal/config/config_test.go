package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "server"
log_level = "debug"

[postgres]
dsn = "postgres://wave:secret@db:5432/wavemint"

[curve]
fee_bps = 250

[verifier]
custodial_account = "Custody111"
timeout = "5s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, uint32(250), cfg.Curve.FeeBps)
	require.Equal(t, 5*time.Second, cfg.Verifier.Timeout.Duration)

	// Untouched keys keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "30 0 * * *", cfg.Export.Cron)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[postgres]
dsn = "postgres://wave:file@db:5432/wavemint"

[verifier]
custodial_account = "Custody111"
`)

	t.Setenv("WAVEMINT_POSTGRES_DSN", "postgres://wave:env@db:5432/wavemint")
	t.Setenv("WAVEMINT_CURVE_FEE_BPS", "300")
	t.Setenv("WAVEMINT_SERVER_CORS_ORIGINS", "https://app.wavemint.io,https://staging.wavemint.io")
	t.Setenv("WAVEMINT_VERIFIER_TIMEOUT", "20s")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "postgres://wave:env@db:5432/wavemint", cfg.Postgres.DSN)
	require.Equal(t, uint32(300), cfg.Curve.FeeBps)
	require.Equal(t, []string{"https://app.wavemint.io", "https://staging.wavemint.io"}, cfg.Server.CORSOrigins)
	require.Equal(t, 20*time.Second, cfg.Verifier.Timeout.Duration)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "batch"
	cfg.Postgres = PostgresConfig{}
	cfg.Redis.Addr = ""
	cfg.Curve.FeeBps = 12_000
	cfg.Verifier.CustodialAccount = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "mode")
	require.ErrorContains(t, err, "fee_bps")
	require.ErrorContains(t, err, "custodial")
}

func TestValidate_DefaultsPlusRequiredFields(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://wave:secret@db:5432/wavemint"
	cfg.Verifier.CustodialAccount = "Custody111"

	require.NoError(t, cfg.Validate())
}

func TestValidate_ExportNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://wave:secret@db:5432/wavemint"
	cfg.Verifier.CustodialAccount = "Custody111"
	cfg.Export.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "bucket")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://wave:secret@db:5432/wavemint"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIKey = "hunter2"

	red := RedactedConfig(&cfg)
	require.NotContains(t, red.Postgres.DSN, "secret")
	require.NotEqual(t, "hunter2", red.Postgres.Password)
	require.NotEqual(t, "hunter2", red.Redis.Password)
	require.NotEqual(t, "hunter2", red.S3.SecretKey)
	require.NotEqual(t, "hunter2", red.Server.APIKey)

	// Original untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}
