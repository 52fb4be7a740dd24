// 로그 수집 비즈니스 로직 정의
// handler에서 받은 로그 배치를 검증하고 큐에 넣은 뒤 바로 반환
//
// 처리 흐름:
//  1. API key 해시로 애플리케이션 조회 (비활성/불일치면 거부)
//  2. 구독 상태 확인 (구독이 있는데 Active가 아니면 거부)
//  3. 테넌트별 rate limit 확인
//  4. 월간 수집 한도 확인
//  5. 이벤트 검증 후 fingerprint를 key로 큐에 발행
//  6. 월간 사용량 증가

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/fingerprint"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/queue"
	"github.com/kube-rca/ingest/internal/ratelimit"
)

const apiKeyPrefix = "sip_"

// GenerateAPIKey - sip_ + base64url(32 random bytes)
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey - 저장용 SHA-256 hex
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func validAPIKeyHash(apiKey, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(apiKey)), []byte(storedHash)) == 1
}

// ingestionStore - 수집 단계에서 쓰는 DB 인터페이스
type ingestionStore interface {
	GetApplicationByKeyHash(ctx context.Context, keyHash string) (*model.Application, error)
	GetSubscription(ctx context.Context, tenantID *uuid.UUID) (*model.Subscription, error)
	GetMonthlyUsage(ctx context.Context, tenantID *uuid.UUID, month int) (model.MonthlyUsage, error)
	IncrementUsage(ctx context.Context, tenantID *uuid.UUID, month int, logs, aiCalls int64) error
}

type admissionLimiter interface {
	Check(ctx context.Context, tenantID *uuid.UUID, resource string) (ratelimit.Result, error)
}

// IngestionService - 수집 API 뒤의 얇은 게이트웨이
type IngestionService struct {
	store     ingestionStore
	limiter   admissionLimiter
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestionService(store ingestionStore, limiter admissionLimiter, publisher queue.Publisher, logger *slog.Logger) *IngestionService {
	return &IngestionService{
		store:     store,
		limiter:   limiter,
		publisher: publisher,
		logger:    logger.With("component", "ingestion"),
		now:       time.Now,
	}
}

// Ingest - 배치를 검증하고 큐에 발행. 거부되는 경우 아무것도 발행하지 않는다.
func (s *IngestionService) Ingest(ctx context.Context, apiKey string, req model.IngestRequest) (model.IngestResult, error) {
	app, err := s.authenticate(ctx, apiKey)
	if err != nil {
		metrics.AdmissionRejected("invalid_api_key")
		return model.IngestResult{}, err
	}

	sub, err := s.store.GetSubscription(ctx, app.TenantID)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	plan := model.PlanFree
	if sub != nil {
		plan = sub.Plan
		if sub.Status != model.SubscriptionActive {
			metrics.AdmissionRejected("subscription_inactive")
			return model.IngestResult{}, ErrSubscriptionInactive
		}
	}
	limits := model.LimitsFor(plan)

	rl, err := s.limiter.Check(ctx, app.TenantID, ratelimit.ResourceLogIngestion)
	if err != nil {
		return model.IngestResult{}, err
	}
	if !rl.Allowed {
		metrics.AdmissionRejected("rate_limited")
		return model.IngestResult{}, &RateLimitError{RetryAfter: rl.RetryAfterSeconds, Limit: rl.Limit}
	}

	now := s.now().UTC()
	month := model.UsageMonth(now)
	usage, err := s.store.GetMonthlyUsage(ctx, app.TenantID, month)
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("failed to load monthly usage: %w", err)
	}
	if usage.LogsIngested+int64(len(req.Events)) > int64(limits.LogsPerMonth) {
		metrics.AdmissionRejected("quota_exceeded")
		return model.IngestResult{}, &QuotaExceededError{Plan: limits.Plan, Limit: limits.LogsPerMonth, Current: usage.LogsIngested}
	}

	msgs, err := buildMessages(app, req, now)
	if err != nil {
		metrics.AdmissionRejected("invalid_input")
		return model.IngestResult{}, err
	}

	accepted := 0
	var publishErr error
	for _, msg := range msgs {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error("failed to publish log event",
				"application_id", app.ID, "correlation_id", msg.CorrelationID, "accepted", accepted, "error", err)
			publishErr = err
			break
		}
		accepted++
	}
	if accepted > 0 {
		if err := s.store.IncrementUsage(ctx, app.TenantID, month, int64(accepted), 0); err != nil {
			s.logger.Warn("failed to increment usage", "application_id", app.ID, "error", err)
		}
		metrics.EventsIngested(accepted)
	}
	if publishErr != nil {
		return model.IngestResult{Accepted: accepted}, &PartialPublishError{Accepted: accepted, Total: len(msgs), Err: publishErr}
	}

	return model.IngestResult{
		Accepted:           accepted,
		Status:             model.IngestStatusQueued,
		RateLimit:          rl.Limit,
		RateLimitRemaining: rl.Remaining(),
	}, nil
}

func (s *IngestionService) authenticate(ctx context.Context, apiKey string) (*model.Application, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrInvalidAPIKey
	}
	app, err := s.store.GetApplicationByKeyHash(ctx, HashAPIKey(apiKey))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}
	if app == nil || !app.IsActive || !validAPIKeyHash(apiKey, app.APIKeyHash) {
		return nil, ErrInvalidAPIKey
	}
	return app, nil
}

// buildMessages - 전체 배치를 먼저 검증한다. 하나라도 잘못되면 아무것도 발행하지 않는다.
func buildMessages(app *model.Application, req model.IngestRequest, now time.Time) ([]queue.Message, error) {
	if len(req.Events) == 0 {
		return nil, invalidInput("events must not be empty")
	}

	msgs := make([]queue.Message, 0, len(req.Events))
	for i, ev := range req.Events {
		body, err := toLogEventMessage(app, ev, now)
		if err != nil {
			return nil, invalidInput("events[%d]: %v", i, err)
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal log event: %w", err)
		}

		attrs := map[string]string{queue.AttrApplicationID: app.ID.String()}
		if app.TenantID != nil {
			attrs[queue.AttrTenantID] = app.TenantID.String()
		}
		correlationID := ""
		if body.CorrelationID != nil {
			correlationID = *body.CorrelationID
		}
		key := fingerprint.ComputePtr(body.Message, body.Source, body.ExceptionType)
		msgs = append(msgs, queue.NewMessage(key, payload, correlationID, attrs))
	}
	return msgs, nil
}

func toLogEventMessage(app *model.Application, ev model.IngestEvent, now time.Time) (model.LogEventMessage, error) {
	level, ok := model.ParseLevel(ev.Level)
	if !ok {
		return model.LogEventMessage{}, fmt.Errorf("unknown level %q", ev.Level)
	}
	if strings.TrimSpace(ev.Message) == "" {
		return model.LogEventMessage{}, errors.New("message is required")
	}
	if err := checkLength("message", &ev.Message, model.MaxMessageLength); err != nil {
		return model.LogEventMessage{}, err
	}
	for _, f := range []struct {
		name  string
		value *string
		max   int
	}{
		{"source", ev.Source, model.MaxSourceLength},
		{"exceptionType", ev.ExceptionType, model.MaxExceptionTypeLength},
		{"stackTrace", ev.StackTrace, model.MaxStackTraceLength},
		{"correlationId", ev.CorrelationID, model.MaxCorrelationIDLength},
	} {
		if err := checkLength(f.name, f.value, f.max); err != nil {
			return model.LogEventMessage{}, err
		}
	}

	ts := now
	if ev.Timestamp != nil && !ev.Timestamp.IsZero() {
		ts = ev.Timestamp.UTC()
	}
	return model.LogEventMessage{
		TenantID:      app.TenantID,
		ApplicationID: app.ID,
		Level:         level,
		Message:       ev.Message,
		Source:        ev.Source,
		ExceptionType: ev.ExceptionType,
		StackTrace:    ev.StackTrace,
		CorrelationID: ev.CorrelationID,
		Timestamp:     ts,
	}, nil
}

func checkLength(name string, value *string, max int) error {
	if value == nil {
		return nil
	}
	if n := len([]rune(*value)); n > max {
		return fmt.Errorf("%s exceeds %d characters (%d)", name, max, n)
	}
	return nil
}
