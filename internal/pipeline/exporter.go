// Package pipeline runs the background ledger export: daily JSONL snapshots
// of the trade ledger uploaded to object storage. The ledger itself is
// append-only and rows are never deleted; exports are pure copies.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
)

const exportContentType = "application/x-ndjson"

// Exporter copies settled trades into daily JSONL snapshot objects.
type Exporter struct {
	trades domain.TradeStore
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewExporter creates an Exporter writing snapshots under the given key
// prefix (e.g. "ledger").
func NewExporter(
	trades domain.TradeStore,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	prefix string,
	logger *slog.Logger,
) *Exporter {
	if prefix == "" {
		prefix = "ledger"
	}
	return &Exporter{
		trades: trades,
		writer: writer,
		reader: reader,
		prefix: prefix,
		logger: logger,
	}
}

// exportRecord is one JSONL line in a snapshot. Amounts stay as numbers in
// base units; consumers are expected to parse the file with 64-bit support.
type exportRecord struct {
	ID                int64     `json:"id"`
	MintID            string    `json:"mint_id"`
	TraderID          string    `json:"trader_id"`
	Side              string    `json:"side"`
	TokenAmount       uint64    `json:"token_amount"`
	SolAmount         uint64    `json:"sol_amount"`
	FeeCharged        uint64    `json:"fee_charged"`
	RoyaltyPaid       uint64    `json:"royalty_paid"`
	ExternalSignature string    `json:"external_signature"`
	CreatedAt         time.Time `json:"created_at"`
}

// snapshotPath returns the object key for one UTC day.
func (e *Exporter) snapshotPath(day time.Time) string {
	return fmt.Sprintf("%s/%s.jsonl", e.prefix, day.UTC().Format("2006/01/02"))
}

// ExportDay exports all trades settled on the given UTC day. A day whose
// snapshot already exists is skipped, which makes repeated runs and manual
// triggers safe. Returns the number of trades written.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (int, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	path := e.snapshotPath(start)

	exists, err := e.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("pipeline: check snapshot %s: %w", path, err)
	}
	if exists {
		e.logger.Debug("export: snapshot already present",
			slog.String("path", path),
		)
		return 0, nil
	}

	trades, err := e.trades.ListBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("pipeline: list trades for %s: %w", start.Format("2006-01-02"), err)
	}
	if len(trades) == 0 {
		e.logger.Debug("export: nothing to export",
			slog.Time("day", start),
		)
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		rec := exportRecord{
			ID:                t.ID,
			MintID:            t.MintID,
			TraderID:          t.TraderID,
			Side:              string(t.Side),
			TokenAmount:       t.TokenAmount,
			SolAmount:         t.SolAmount,
			FeeCharged:        t.FeeCharged,
			RoyaltyPaid:       t.RoyaltyPaid,
			ExternalSignature: t.ExternalSignature,
			CreatedAt:         t.CreatedAt.UTC(),
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("pipeline: encode trade %d: %w", t.ID, err)
		}
	}

	if err := e.writer.Put(ctx, path, &buf, exportContentType); err != nil {
		return 0, fmt.Errorf("pipeline: upload snapshot %s: %w", path, err)
	}

	e.logger.Info("export: snapshot written",
		slog.String("path", path),
		slog.Int("trades", len(trades)),
	)
	return len(trades), nil
}

// Run exports yesterday's ledger. Today's trades stay in flight until the
// day closes.
func (e *Exporter) Run(ctx context.Context) error {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	_, err := e.ExportDay(ctx, yesterday)
	return err
}

// RunLoop runs exports on a cron schedule until the context is cancelled.
// A send on trigger forces an immediate run, used by the manual export
// endpoint.
func (e *Exporter) RunLoop(ctx context.Context, cronExpr string, trigger <-chan struct{}) error {
	e.logger.Info("export: loop started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info("export: loop stopped")
			return ctx.Err()
		case <-trigger:
			timer.Stop()
			if err := e.Run(ctx); err != nil {
				e.logger.Error("export: triggered run failed",
					slog.String("error", err.Error()),
				)
			}
		case <-timer.C:
			if err := e.Run(ctx); err != nil {
				e.logger.Error("export: scheduled run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
