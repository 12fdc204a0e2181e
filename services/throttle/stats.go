package throttle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stats records verdict counts
type Stats interface {
	Record(ctx context.Context, v Verdict)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is a point-in-time count per verdict name
type Snapshot struct {
	Counts map[string]int64 `json:"counts"`
	Since  time.Time        `json:"since"`
}

type nopStats struct{}

func (nopStats) Record(context.Context, Verdict) {}

func (nopStats) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{Counts: map[string]int64{}}, nil
}

// MemoryStats counts verdicts in process
type MemoryStats struct {
	counts [len(verdictNames)]atomic.Int64
	since  time.Time
}

// NewMemoryStats creates an in-process recorder
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{since: time.Now().UTC()}
}

// Record implements Stats
func (s *MemoryStats) Record(_ context.Context, v Verdict) {
	if v < 0 || int(v) >= len(s.counts) {
		return
	}
	s.counts[v].Add(1)
}

// Snapshot implements Stats
func (s *MemoryStats) Snapshot(context.Context) (Snapshot, error) {
	snap := Snapshot{Counts: make(map[string]int64, len(s.counts)), Since: s.since}
	for _, v := range Verdicts() {
		snap.Counts[v.String()] = s.counts[v].Load()
	}
	return snap, nil
}

// RedisStats keeps cumulative counters in a redis hash so every replica
// reports the same totals.
type RedisStats struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisStats creates a redis-backed recorder
func NewRedisStats(client redis.UniversalClient, logger *zap.Logger) *RedisStats {
	return &RedisStats{
		client: client,
		prefix: "throttle:stats",
		logger: logger,
	}
}

// Record implements Stats. Failures are logged, never returned; stats must
// not affect the request.
func (s *RedisStats) Record(ctx context.Context, v Verdict) {
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", v.String(), 1)
	pipe.HSetNX(ctx, s.prefix+":meta", "since", time.Now().UTC().Format(time.RFC3339))

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to record throttle stats", zap.Error(err))
	}
}

// Snapshot implements Stats
func (s *RedisStats) Snapshot(ctx context.Context) (Snapshot, error) {
	raw, err := s.client.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read throttle stats: %w", err)
	}

	snap := Snapshot{Counts: make(map[string]int64)}
	for _, v := range Verdicts() {
		snap.Counts[v.String()] = 0
	}
	for field, val := range raw {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			snap.Counts[field] = n
		}
	}

	since, err := s.client.HGet(ctx, s.prefix+":meta", "since").Result()
	if err == nil {
		if t, perr := time.Parse(time.RFC3339, since); perr == nil {
			snap.Since = t
		}
	} else if !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("read throttle stats: %w", err)
	}

	return snap, nil
}
