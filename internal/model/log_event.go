package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxMessageLength       = 4000
	MaxSourceLength        = 512
	MaxExceptionTypeLength = 512
	MaxStackTraceLength    = 8000
	MaxCorrelationIDLength = 64
)

// LogEvent - 수집된 로그 이벤트 1건. incident 연결 외에는 변경되지 않는다.
type LogEvent struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      *uuid.UUID `json:"tenantId"`
	ApplicationID uuid.UUID  `json:"applicationId"`
	Level         Level      `json:"level"`
	Message       string     `json:"message"`
	Source        *string    `json:"source"`
	ExceptionType *string    `json:"exceptionType"`
	StackTrace    *string    `json:"stackTrace,omitempty"`
	CorrelationID *string    `json:"correlationId"`
	HashSignature string     `json:"hashSignature"`
	Timestamp     time.Time  `json:"timestamp"`
	IncidentID    *uuid.UUID `json:"incidentId"`
}

// LogEventMessage - 수집 API가 큐에 넣고 processor가 소비하는 메시지 본문
type LogEventMessage struct {
	TenantID      *uuid.UUID `json:"tenantId"`
	ApplicationID uuid.UUID  `json:"applicationId"`
	Level         Level      `json:"level"`
	Message       string     `json:"message"`
	Source        *string    `json:"source,omitempty"`
	ExceptionType *string    `json:"exceptionType,omitempty"`
	StackTrace    *string    `json:"stackTrace,omitempty"`
	CorrelationID *string    `json:"correlationId,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ToLogEvent - 메시지를 저장용 LogEvent로 변환
func (m LogEventMessage) ToLogEvent(hashSignature string) LogEvent {
	return LogEvent{
		ID:            uuid.New(),
		TenantID:      m.TenantID,
		ApplicationID: m.ApplicationID,
		Level:         m.Level,
		Message:       m.Message,
		Source:        m.Source,
		ExceptionType: m.ExceptionType,
		StackTrace:    m.StackTrace,
		CorrelationID: m.CorrelationID,
		HashSignature: hashSignature,
		Timestamp:     m.Timestamp,
	}
}

// ============================================================================
// 수집 API 요청/응답
// ============================================================================

// IngestEvent - 수집 요청에 담기는 이벤트 1건
type IngestEvent struct {
	Level         string     `json:"level"`
	Message       string     `json:"message"`
	Source        *string    `json:"source,omitempty"`
	ExceptionType *string    `json:"exceptionType,omitempty"`
	StackTrace    *string    `json:"stackTrace,omitempty"`
	CorrelationID *string    `json:"correlationId,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

type IngestRequest struct {
	Events []IngestEvent `json:"events"`
}

type IngestResult struct {
	Accepted int    `json:"accepted"`
	Status   string `json:"status"`

	// 응답 헤더용 rate limit 상태
	RateLimit          int `json:"-"`
	RateLimitRemaining int `json:"-"`
}

const IngestStatusQueued = "Queued"

// FailedLogEvent - 재시도 한도를 넘겨 dead-letter로 빠진 메시지 기록. 자동 재처리하지 않는다.
type FailedLogEvent struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         *uuid.UUID `json:"tenant_id"`
	OriginalPayload  string     `json:"original_payload"`
	ErrorMessage     string     `json:"error_message"`
	DeliveryAttempt  int        `json:"delivery_attempt"`
	DeadLetterReason *string    `json:"dead_letter_reason"`
	CorrelationID    *string    `json:"correlation_id"`
	FailedAt         time.Time  `json:"failed_at"`
}
