package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

type fakeTradeLister struct {
	domain.TradeStore

	trades []domain.Trade
}

func (f *fakeTradeLister) ListBetween(_ context.Context, since, until time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range f.trades {
		if !t.CreatedAt.Before(since) && t.CreatedAt.Before(until) {
			out = append(out, t)
		}
	}
	return out, nil
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[path] = raw
	return nil
}

func (m *memoryBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memoryBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(raw))), nil
}

func (m *memoryBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []domain.BlobInfo
	for path, raw := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(raw))})
		}
	}
	return infos, nil
}

func (m *memoryBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func TestExportDay_WritesJSONL(t *testing.T) {
	target := day(t, "2026-08-30")
	trades := &fakeTradeLister{trades: []domain.Trade{
		{ID: 1, MintID: "mint-a", TraderID: "t1", Side: domain.TradeSideBuy, SolAmount: 1_000_000_000, TokenAmount: 36_000_000_000_000_000, ExternalSignature: "sig1", CreatedAt: target.Add(2 * time.Hour)},
		{ID: 2, MintID: "mint-a", TraderID: "t2", Side: domain.TradeSideSell, SolAmount: 400_000_000, TokenAmount: 14_000_000_000_000_000, ExternalSignature: "sig2", CreatedAt: target.Add(20 * time.Hour)},
		{ID: 3, MintID: "mint-b", TraderID: "t1", Side: domain.TradeSideBuy, SolAmount: 50_000_000, TokenAmount: 2_000_000_000_000_000, ExternalSignature: "sig3", CreatedAt: target.Add(25 * time.Hour)}, // next day
	}}
	blobs := &memoryBlobs{}

	e := NewExporter(trades, blobs, blobs, "ledger", slog.New(slog.DiscardHandler))
	n, err := e.ExportDay(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	body, err := e.reader.Get(context.Background(), "ledger/2026/08/30.jsonl")
	require.NoError(t, err)
	defer body.Close()

	var lines []exportRecord
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		var rec exportRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	require.Equal(t, int64(1), lines[0].ID)
	require.Equal(t, "buy", lines[0].Side)
	require.Equal(t, uint64(1_000_000_000), lines[0].SolAmount)
	require.Equal(t, "sig2", lines[1].ExternalSignature)
}

func TestExportDay_SkipsExistingSnapshot(t *testing.T) {
	target := day(t, "2026-08-30")
	trades := &fakeTradeLister{trades: []domain.Trade{
		{ID: 1, MintID: "mint-a", CreatedAt: target.Add(time.Hour)},
	}}
	blobs := &memoryBlobs{objects: map[string][]byte{
		"ledger/2026/08/30.jsonl": []byte("{}\n"),
	}}

	e := NewExporter(trades, blobs, blobs, "ledger", slog.New(slog.DiscardHandler))
	n, err := e.ExportDay(context.Background(), target)
	require.NoError(t, err)
	require.Zero(t, n)

	// Original object untouched.
	require.Equal(t, []byte("{}\n"), blobs.objects["ledger/2026/08/30.jsonl"])
}

func TestExportDay_EmptyDayWritesNothing(t *testing.T) {
	blobs := &memoryBlobs{}
	e := NewExporter(&fakeTradeLister{}, blobs, blobs, "ledger", slog.New(slog.DiscardHandler))

	n, err := e.ExportDay(context.Background(), day(t, "2026-08-30"))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, blobs.objects)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 30, 2, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("*/15 * * * *", after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 30, 2, 45, 0, 0, time.UTC), next)

	_, err = nextCronTime("bogus", after)
	require.Error(t, err)
}
