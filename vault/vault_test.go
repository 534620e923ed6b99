package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/types"
)

func testService(t *testing.T) *Service {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.BaseDir = filepath.Join(dir, "store")
	cfg.Query.BaseDir = filepath.Join(dir, "queries")

	s, err := New(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestServiceStoreThenQuery(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	ts := time.Now().Add(-time.Hour).UnixMilli()
	res := s.Store(ctx, types.UsageDataPoint{
		Timestamp:    ts,
		Date:         time.UnixMilli(ts).UTC().Format("2006-01-02"),
		RequestCount: 5,
		SessionID:    "s1",
	})
	if !res.Success {
		t.Fatalf("Store: %s", res.Error)
	}

	out, err := s.Query(ctx, []query.Filter{
		{Field: "sessionId", Operator: query.OpEq, Value: "s1"},
	}, query.Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.TotalCount != 1 {
		t.Fatalf("TotalCount = %d, want 1", out.TotalCount)
	}
}

func TestServiceWriteInvalidatesCache(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	ts := time.Now().Add(-time.Hour).UnixMilli()
	mk := func(session string, off int64) types.UsageDataPoint {
		return types.UsageDataPoint{Timestamp: ts + off, SessionID: session, RequestCount: 1}
	}

	s.Store(ctx, mk("a", 0))

	first, err := s.Query(ctx, nil, query.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalCount != 1 {
		t.Fatalf("TotalCount = %d, want 1", first.TotalCount)
	}

	// A write between identical queries must not let the second one
	// serve the stale cached count.
	s.Store(ctx, mk("b", 1000))

	second, err := s.Query(ctx, nil, query.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if second.FromCache {
		t.Error("query after write served from cache")
	}
	if second.TotalCount != 2 {
		t.Errorf("TotalCount after write = %d, want 2", second.TotalCount)
	}
}

func TestServiceStartStop(t *testing.T) {
	s := testService(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestServiceBuilderRoundTrip(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Hour).UnixMilli()
	var batch []types.UsageDataPoint
	for i := 0; i < 5; i++ {
		batch = append(batch, types.UsageDataPoint{
			Timestamp:    base + int64(i)*60_000,
			RequestCount: (i + 1) * 10,
			SessionID:    "builder",
		})
	}
	if res := s.StoreBatch(ctx, batch); !res.Success {
		t.Fatalf("StoreBatch: %s", res.Error)
	}

	out, err := s.CreateQuery().
		Where("requestCount", query.OpGte, 30).
		Sort("requestCount", query.Descending).
		Limit(2).
		Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.TotalCount != 3 || len(out.Points) != 2 {
		t.Fatalf("total %d returned %d, want 3 and 2", out.TotalCount, len(out.Points))
	}
	if out.Points[0].RequestCount != 50 {
		t.Errorf("first row = %d, want 50", out.Points[0].RequestCount)
	}
}
