package stats

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	models "redline/internal/domain/models/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var day = time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)

func setupTestSink(t *testing.T) (*RedisSink, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSink(client).WithClock(func() time.Time { return day }), s
}

func TestRedisSink_Record(t *testing.T) {
	sink, s := setupTestSink(t)
	ctx := context.Background()

	deltas := suggestionSvc.TransitionDeltas(models.TypeGrammar, models.StatusPending, models.StatusSkipped)
	if err := sink.Record(ctx, "tenant-1", deltas); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := sink.Record(ctx, "tenant-1", deltas); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	key := "stats:tenant-1:2026-03-01"
	if got := s.HGet(key, "grammar:skipped"); got != "2" {
		t.Errorf("expected grammar:skipped=2, got %q", got)
	}
	if got := s.HGet(key, "grammar:pending"); got != "-2" {
		t.Errorf("expected grammar:pending=-2, got %q", got)
	}
	if ttl := s.TTL(key); ttl != DefaultRetention {
		t.Errorf("expected ttl %s, got %s", DefaultRetention, ttl)
	}

	counts, err := sink.Counts(ctx, "tenant-1", day)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[models.TypeGrammar][models.StatusSkipped] != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestRedisSink_TenantsIsolated(t *testing.T) {
	sink, _ := setupTestSink(t)
	ctx := context.Background()

	_ = sink.Record(ctx, "tenant-a", []suggestionSvc.StatsDelta{{Type: models.TypeFact, Status: models.StatusAccepted, Delta: 1}})

	counts, err := sink.Counts(ctx, "tenant-b", day)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("expected no counts for tenant-b, got %v", counts)
	}
}

func TestRedisSink_EmptyDeltas(t *testing.T) {
	sink, s := setupTestSink(t)
	if err := sink.Record(context.Background(), "tenant-1", nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Errorf("expected no keys written, got %v", keys)
	}
}

func TestRedisSink_Unavailable(t *testing.T) {
	sink, s := setupTestSink(t)
	s.Close()

	err := sink.Record(context.Background(), "tenant-1", []suggestionSvc.StatsDelta{{Type: models.TypeLLM, Status: models.StatusRejected, Delta: 1}})
	if err == nil {
		t.Error("expected error when redis is down")
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	err := sink.Record(context.Background(), "tenant-1", []suggestionSvc.StatsDelta{{Type: models.TypeBrand, Status: models.StatusAccepted, Delta: 1}})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"type":"brand"`) {
		t.Errorf("expected delta in log output, got %s", buf.String())
	}
}
