package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/model"
	tmpl "github.com/kube-rca/ingest/internal/template"
)

const webhookSecretHeader = "X-Webhook-Secret"

// webhookConfigReader - DB 인터페이스 (delivery 전용)
type webhookConfigReader interface {
	ListActiveWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error)
}

// WebhookDispatcher - 테넌트가 등록한 웹훅으로 새 Incident를 알린다
type WebhookDispatcher struct {
	configDB    webhookConfigReader
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
}

// NewWebhookDispatcher 생성자
func NewWebhookDispatcher(configDB webhookConfigReader, cfg config.WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDispatcher{
		configDB:    configDB,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		baseDelay:   delay,
		logger:      logger.With("component", "webhook"),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// DispatchIncidentCreated - 모든 활성 웹훅에 전송
//
// 개별 웹훅 실패는 로그만 남기고 나머지는 계속 전송합니다. 에러를 반환하지 않는다.
func (d *WebhookDispatcher) DispatchIncidentCreated(ctx context.Context, inc *model.Incident, applicationName string) {
	hooks, err := d.configDB.ListActiveWebhooks(ctx, inc.TenantID)
	if err != nil {
		d.logger.Error("failed to load webhook registrations", "tenant_id", inc.TenantID, "error", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	now := d.now().UTC()
	payload, err := json.Marshal(model.NewWebhookPayload(inc, applicationName, now))
	if err != nil {
		d.logger.Error("failed to marshal webhook payload", "incident_id", inc.ID, "error", err)
		return
	}
	data := tmpl.IncidentDataFromModel(inc, applicationName)

	for _, hook := range hooks {
		if hook.URL == "" {
			continue
		}
		body := payload
		if hook.BodyTemplate != "" {
			body = []byte(tmpl.RenderBody(hook.BodyTemplate, &data, now))
		}

		ok := d.deliver(ctx, hook, body)
		metrics.WebhookDelivered(ok)
		if ok {
			d.logger.Info("webhook delivered", "webhook_id", hook.ID, "incident_id", inc.ID)
		} else {
			d.logger.Error("webhook delivery abandoned", "webhook_id", hook.ID, "url", hook.URL, "incident_id", inc.ID)
		}
	}
}

// deliver - 최대 maxAttempts회 시도. 시도 사이에는 baseDelay*2^attempt 대기 (마지막 시도 후에는 대기 없음)
func (d *WebhookDispatcher) deliver(ctx context.Context, hook model.WebhookRegistration, body []byte) bool {
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		err := d.sendHTTP(ctx, hook, body)
		if err == nil {
			return true
		}
		d.logger.Warn("webhook attempt failed", "webhook_id", hook.ID, "attempt", attempt+1, "error", err)
		if attempt < d.maxAttempts-1 {
			d.sleep(ctx, d.baseDelay*time.Duration(1<<uint(attempt)))
		}
	}
	return false
}

// sendHTTP - 단일 웹훅으로 POST 전송
func (d *WebhookDispatcher) sendHTTP(ctx context.Context, hook model.WebhookRegistration, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != nil && *hook.Secret != "" {
		req.Header.Set(webhookSecretHeader, *hook.Secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
