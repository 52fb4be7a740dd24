package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value     int
	expiresAt time.Time
}

// MemoryStore - 단일 프로세스용 카운터 저장소
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter), now: time.Now}
}

func (s *MemoryStore) IncrementIfBelow(ctx context.Context, key string, max int, ttl time.Duration) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
		s.sweep(now)
	}
	if c.value >= max {
		return c.value, false, nil
	}
	c.value++
	return c.value, true, nil
}

// sweep - 만료된 키 정리. 새 키가 생길 때만 호출된다.
func (s *MemoryStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if now.After(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}
