package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const shardCount = 64

type memoryWindow struct {
	stamps []time.Time // ascending
	window time.Duration
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

// MemoryStore keeps windows in process memory behind striped locks.
// Keys hash onto a fixed set of shards so unrelated subjects rarely contend.
type MemoryStore struct {
	shards [shardCount]memoryShard
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{logger: logger}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*memoryWindow)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// Allow implements Store
func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok {
		w = &memoryWindow{}
		sh.windows[key] = w
	}
	w.window = window
	w.prune(now)

	if len(w.stamps) >= limit {
		return newResult(false, limit, len(w.stamps), w.oldest(), window, now), nil
	}

	w.insert(now)
	return newResult(true, limit, len(w.stamps), w.oldest(), window, now), nil
}

func (w *memoryWindow) oldest() time.Time {
	if len(w.stamps) == 0 {
		return time.Time{}
	}
	return w.stamps[0]
}

// prune drops stamps at or before now-window
func (w *memoryWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// insert keeps stamps ascending when callers race with slightly older clocks
func (w *memoryWindow) insert(t time.Time) {
	i := len(w.stamps)
	for i > 0 && w.stamps[i-1].After(t) {
		i--
	}
	w.stamps = append(w.stamps, time.Time{})
	copy(w.stamps[i+1:], w.stamps[i:])
	w.stamps[i] = t
}

// Len returns the number of tracked subjects
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// Sweep forgets subjects whose windows are empty at now
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, w := range sh.windows {
			w.prune(now)
			if len(w.stamps) == 0 {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps idle subjects every interval until ctx is done
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				s.logger.Debug("swept idle rate limit windows", zap.Int("removed", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
