package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/wavemint/wavemint/internal/blob/s3"
	"github.com/wavemint/wavemint/internal/cache/redis"
	"github.com/wavemint/wavemint/internal/config"
	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/platform/solana"
	"github.com/wavemint/wavemint/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	CurveStore    domain.CurveStore
	TradeStore    domain.TradeStore
	VestingStore  domain.VestingStore
	EarningsStore domain.EarningsStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// External transfer checks
	Verifier  domain.TransferVerifier
	Disburser domain.Disburser
}

// needsS3 returns true for modes that write ledger snapshots.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "export":
		return true
	case "full":
		return cfg.Export.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (the ledger; every mode needs it) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.CurveStore = postgres.NewCurveStore(pool, cfg.Curve.GraduationThreshold)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.VestingStore = postgres.NewVestingStore(pool)
	deps.EarningsStore = postgres.NewEarningsStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that export snapshots) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Transfer verification and disbursement ---
	deps.Verifier = solana.NewVerifier(
		cfg.Verifier.Endpoint,
		cfg.Verifier.CustodialAccount,
		logger,
		solana.WithTimeout(cfg.Verifier.Timeout.Duration),
		solana.WithMaxTries(uint(cfg.Verifier.MaxTries)),
	)
	if cfg.Verifier.TreasuryEndpoint != "" {
		deps.Disburser = solana.NewTreasury(
			cfg.Verifier.TreasuryEndpoint,
			logger,
			solana.WithTreasuryTimeout(cfg.Verifier.Timeout.Duration),
			solana.WithTreasuryMaxTries(uint(cfg.Verifier.MaxTries)),
		)
	}

	return deps, cleanup, nil
}
