package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

// ListActiveWebhooks - 테넌트의 활성 웹훅 목록 (등록순)
func (p *Postgres) ListActiveWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, tenant_id, url, secret, is_active, body_template, created_at
		FROM webhook_registrations
		WHERE tenant_id IS NOT DISTINCT FROM $1 AND is_active
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook registrations: %w", err)
	}
	defer rows.Close()

	hooks := []model.WebhookRegistration{}
	for rows.Next() {
		var h model.WebhookRegistration
		if err := rows.Scan(&h.ID, &h.TenantID, &h.URL, &h.Secret, &h.IsActive, &h.BodyTemplate, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook registration: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// ListWebhooks - 비활성 포함 전체 목록
func (p *Postgres) ListWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, tenant_id, url, secret, is_active, body_template, created_at
		FROM webhook_registrations
		WHERE tenant_id IS NOT DISTINCT FROM $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook registrations: %w", err)
	}
	defer rows.Close()

	hooks := []model.WebhookRegistration{}
	for rows.Next() {
		var h model.WebhookRegistration
		if err := rows.Scan(&h.ID, &h.TenantID, &h.URL, &h.Secret, &h.IsActive, &h.BodyTemplate, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook registration: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

func (p *Postgres) CreateWebhook(ctx context.Context, h model.WebhookRegistration) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO webhook_registrations (id, tenant_id, url, secret, is_active, body_template, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.TenantID, h.URL, h.Secret, h.IsActive, h.BodyTemplate, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook registration: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	tag, err := p.Pool.Exec(ctx, `
		DELETE FROM webhook_registrations WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleWebhook - 활성 상태를 뒤집고 변경된 등록 정보를 반환
func (p *Postgres) ToggleWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error) {
	var h model.WebhookRegistration
	err := p.Pool.QueryRow(ctx, `
		UPDATE webhook_registrations SET is_active = NOT is_active
		WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2
		RETURNING id, tenant_id, url, secret, is_active, body_template, created_at
	`, id, tenantID).Scan(&h.ID, &h.TenantID, &h.URL, &h.Secret, &h.IsActive, &h.BodyTemplate, &h.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle webhook registration: %w", err)
	}
	return &h, nil
}
