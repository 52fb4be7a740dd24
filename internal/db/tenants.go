package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

// GetApplicationByKeyHash - API key 해시로 애플리케이션 조회
func (db *Postgres) GetApplicationByKeyHash(ctx context.Context, keyHash string) (*model.Application, error) {
	var app model.Application
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, api_key_hash, is_active
		FROM applications
		WHERE api_key_hash = $1
	`, keyHash).Scan(&app.ID, &app.TenantID, &app.Name, &app.APIKeyHash, &app.IsActive)
	if IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (db *Postgres) GetApplicationName(ctx context.Context, applicationID uuid.UUID) (string, error) {
	var name string
	err := db.Pool.QueryRow(ctx, `SELECT name FROM applications WHERE id = $1`, applicationID).Scan(&name)
	if IsNoRows(err) {
		return "", ErrNotFound
	}
	return name, err
}

// GetSubscription - 구독이 없으면 (nil, nil)
func (db *Postgres) GetSubscription(ctx context.Context, tenantID *uuid.UUID) (*model.Subscription, error) {
	if tenantID == nil {
		return nil, nil
	}
	var sub model.Subscription
	var plan, status string
	err := db.Pool.QueryRow(ctx, `
		SELECT tenant_id, plan, status, updated_at
		FROM subscriptions
		WHERE tenant_id = $1
	`, *tenantID).Scan(&sub.TenantID, &plan, &status, &sub.UpdatedAt)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.Plan = model.Plan(plan)
	sub.Status = model.SubscriptionStatus(status)
	return &sub, nil
}

// GetLimits - 구독이 없으면 Free 요금제
func (db *Postgres) GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error) {
	sub, err := db.GetSubscription(ctx, tenantID)
	if err != nil {
		return model.PlanLimits{}, err
	}
	if sub == nil {
		return model.LimitsFor(model.PlanFree), nil
	}
	return model.LimitsFor(sub.Plan), nil
}

// ListTenantIDs - 구독 또는 애플리케이션이 있는 테넌트 목록 (host 제외)
func (db *Postgres) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT tenant_id FROM subscriptions
		UNION
		SELECT DISTINCT tenant_id FROM applications WHERE tenant_id IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// 월간 사용량
// ============================================================================

func tenantKey(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return "host"
	}
	return tenantID.String()
}

func (db *Postgres) GetMonthlyUsage(ctx context.Context, tenantID *uuid.UUID, month int) (model.MonthlyUsage, error) {
	usage := model.MonthlyUsage{TenantID: tenantID, Month: month}
	err := db.Pool.QueryRow(ctx, `
		SELECT logs_ingested, ai_calls_used
		FROM monthly_usage
		WHERE tenant_key = $1 AND month = $2
	`, tenantKey(tenantID), month).Scan(&usage.LogsIngested, &usage.AICallsUsed)
	if IsNoRows(err) {
		return usage, nil
	}
	return usage, err
}

// IncrementUsage - 행이 없으면 생성하고 원자적으로 누적
func (db *Postgres) IncrementUsage(ctx context.Context, tenantID *uuid.UUID, month int, logs, aiCalls int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO monthly_usage (tenant_key, tenant_id, month, logs_ingested, ai_calls_used)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_key, month) DO UPDATE
		SET logs_ingested = monthly_usage.logs_ingested + EXCLUDED.logs_ingested,
			ai_calls_used = monthly_usage.ai_calls_used + EXCLUDED.ai_calls_used
	`, tenantKey(tenantID), tenantID, month, logs, aiCalls)
	return err
}

// ============================================================================
// Dead-letter
// ============================================================================

func (db *Postgres) InsertFailedLogEvent(ctx context.Context, f model.FailedLogEvent) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO failed_log_events (
			id, tenant_id, original_payload, error_message, delivery_attempt,
			dead_letter_reason, correlation_id, failed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ID, f.TenantID, f.OriginalPayload, f.ErrorMessage, f.DeliveryAttempt,
		f.DeadLetterReason, f.CorrelationID, f.FailedAt)
	return err
}
