// Package stats provides best-effort usage-statistics sinks for suggestion
// status transitions.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	models "redline/internal/domain/models/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long daily counter hashes are kept.
const DefaultRetention = 90 * 24 * time.Hour

// RedisSink accumulates deltas in one Redis hash per tenant per day.
// Fields are "{type}:{status}".
type RedisSink struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisSink creates a sink from an existing Redis client
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client:    client,
		prefix:    "stats:",
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// WithClock returns a copy of the sink that picks day buckets from now.
func (s *RedisSink) WithClock(now func() time.Time) *RedisSink {
	cp := *s
	cp.now = now
	return &cp
}

// key generates the Redis key for a tenant's counters on day
func (s *RedisSink) key(tenantID string, day time.Time) string {
	return s.prefix + tenantID + ":" + day.UTC().Format(time.DateOnly)
}

// Record applies deltas atomically to today's hash.
func (s *RedisSink) Record(ctx context.Context, tenantID string, deltas []suggestionSvc.StatsDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	key := s.key(tenantID, s.now())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range deltas {
			pipe.HIncrBy(ctx, key, field(d.Type, d.Status), d.Delta)
		}
		pipe.Expire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Counts returns the counters recorded for tenantID on day.
func (s *RedisSink) Counts(ctx context.Context, tenantID string, day time.Time) (map[models.Type]map[models.Status]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key(tenantID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}

	counts := make(map[models.Type]map[models.Status]int64)
	for f, v := range raw {
		typ, status, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		t := models.Type(typ)
		if counts[t] == nil {
			counts[t] = make(map[models.Status]int64)
		}
		counts[t][models.Status(status)] = n
	}
	return counts, nil
}

func field(t models.Type, s models.Status) string {
	return string(t) + ":" + string(s)
}

// LogSink writes deltas to a structured logger. Used when no Redis is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every delta at debug level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the deltas. It never fails.
func (s *LogSink) Record(ctx context.Context, tenantID string, deltas []suggestionSvc.StatsDelta) error {
	for _, d := range deltas {
		s.logger.DebugContext(ctx, "suggestion stats delta",
			"tenant_id", tenantID,
			"type", d.Type,
			"status", d.Status,
			"delta", d.Delta,
		)
	}
	return nil
}
