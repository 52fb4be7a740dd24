// Package queue carries log event messages from ingestion to the processor
// with at-least-once delivery and bounded redelivery.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// 메시지 속성 키
const (
	AttrTenantID      = "TenantId"
	AttrApplicationID = "ApplicationId"
)

// Message - 큐에 실리는 메시지. Key가 같은 메시지는 같은 worker/partition에서 순서대로 처리된다.
type Message struct {
	ID            string
	Key           string
	Body          []byte
	Attributes    map[string]string
	CorrelationID string
	// DeliveryCount - 1부터 시작하는 현재 전달 횟수
	DeliveryCount int
}

// NewMessage - correlation id가 비어 있으면 새로 생성
func NewMessage(key string, body []byte, correlationID string, attrs map[string]string) Message {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Message{
		ID:            uuid.NewString(),
		Key:           key,
		Body:          body,
		Attributes:    attrs,
		CorrelationID: correlationID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler - nil을 반환하면 ack, 에러를 반환하면 재전달 대상
type Handler func(ctx context.Context, msg Message) error

// DeadLetter - 재전달 한도를 넘긴 메시지
type DeadLetter struct {
	Message Message
	Err     error
	Reason  string
}

const ReasonMaxDeliveryExceeded = "MaxDeliveryCountExceeded"

// DeadLetterSink - dead-letter 메시지를 기록하는 쪽
type DeadLetterSink interface {
	Record(ctx context.Context, dl DeadLetter) error
}

// RetryPolicy - n번째 전달 실패 후 BaseDelay*2^(n-1) 만큼 대기하고 재전달
type RetryPolicy struct {
	MaxDeliveries int           `yaml:"max_deliveries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
}

var DefaultRetryPolicy = RetryPolicy{MaxDeliveries: 10, BaseDelay: 2 * time.Second}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxDeliveries <= 0 {
		p.MaxDeliveries = DefaultRetryPolicy.MaxDeliveries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	return p
}

// Backoff - attempt는 실패한 전달 횟수 (1부터)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt-1))
}

// sleepCtx - ctx가 취소되면 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
