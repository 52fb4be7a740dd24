package service

import (
	"errors"
	"fmt"

	"github.com/kube-rca/ingest/internal/model"
)

// 수집 허용 단계 에러. 이 에러들은 아무것도 큐에 넣지 않은 상태에서 반환된다.
var (
	ErrInvalidAPIKey        = errors.New("invalid api key")
	ErrSubscriptionInactive = errors.New("subscription is not active")
	ErrInvalidInput         = errors.New("invalid input")
	ErrFeatureNotAvailable  = errors.New("feature not available on current plan")
)

// RateLimitError - 고정 윈도우 한도 초과
type RateLimitError struct {
	RetryAfter int
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit %d, retry after %ds)", e.Limit, e.RetryAfter)
}

// QuotaExceededError - 월간 수집 한도 초과
type QuotaExceededError struct {
	Plan    model.Plan
	Limit   int
	Current int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly log quota exceeded for %s plan (%d/%d)", e.Plan, e.Current, e.Limit)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// PartialPublishError - 배치 중간에 큐 발행이 실패함. 앞의 Accepted건은 이미 큐에 들어갔고 사용량에도 반영됐다.
// 클라이언트는 Accepted 이후 이벤트만 다시 보내야 중복이 생기지 않는다.
type PartialPublishError struct {
	Accepted int
	Total    int
	Err      error
}

func (e *PartialPublishError) Error() string {
	return fmt.Sprintf("queue unavailable after %d of %d events: %v", e.Accepted, e.Total, e.Err)
}

func (e *PartialPublishError) Unwrap() error { return e.Err }
