// Package ratelimit implements per-tenant fixed-window admission control.
//
// 윈도우 경계 직전과 직후에 요청이 몰리면 짧은 구간에 최대 2*Max 건까지 허용될 수 있다.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxRequests = 1000
	DefaultWindow      = 60 * time.Second

	// ResourceLogIngestion - 수집 API에 적용되는 리소스 이름
	ResourceLogIngestion = "log-ingestion"
)

// CounterStore - 키별 카운터. 읽기-비교-증가를 원자적으로 수행해야 한다.
type CounterStore interface {
	// IncrementIfBelow - count < max 이면 증가 후 (증가된 값, true), 아니면 (현재 값, false)
	IncrementIfBelow(ctx context.Context, key string, max int, ttl time.Duration) (int, bool, error)
}

type Config struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type Result struct {
	Allowed           bool
	CurrentCount      int
	Limit             int
	RetryAfterSeconds int
}

// Remaining - 남은 요청 수 (음수가 되지 않음)
func (r Result) Remaining() int {
	if r.CurrentCount >= r.Limit {
		return 0
	}
	return r.Limit - r.CurrentCount
}

type Limiter struct {
	store CounterStore
	max   int
	win   time.Duration
	now   func() time.Time
}

func NewLimiter(store CounterStore, cfg Config) *Limiter {
	max := cfg.MaxRequests
	if max <= 0 {
		max = DefaultMaxRequests
	}
	win := cfg.Window
	if win < time.Second {
		win = DefaultWindow
	}
	return &Limiter{store: store, max: max, win: win, now: time.Now}
}

// Check - (tenant, resource, window slot) 카운터를 확인하고 허용 시 증가
//
// 거부 시 RetryAfterSeconds는 윈도우 경계까지 남은 시간이 아니라 윈도우 크기 전체이다.
func (l *Limiter) Check(ctx context.Context, tenantID *uuid.UUID, resource string) (Result, error) {
	windowSeconds := int(l.win / time.Second)
	key := Key(tenantID, resource, l.now(), windowSeconds)

	count, allowed, err := l.store.IncrementIfBelow(ctx, key, l.max, l.win)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	res := Result{Allowed: allowed, CurrentCount: count, Limit: l.max}
	if !allowed {
		res.RetryAfterSeconds = windowSeconds
	}
	return res, nil
}

// Key - ratelimit:{tenant}:{resource}:{slot}
func Key(tenantID *uuid.UUID, resource string, now time.Time, windowSeconds int) string {
	tenant := "host"
	if tenantID != nil {
		tenant = tenantID.String()
	}
	slot := now.Unix() / int64(windowSeconds)
	return fmt.Sprintf("ratelimit:%s:%s:%d", tenant, resource, slot)
}
