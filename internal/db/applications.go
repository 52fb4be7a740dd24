package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

func (db *Postgres) ListApplications(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, name, api_key_hash, is_active, created_at
		FROM applications
		WHERE tenant_id IS NOT DISTINCT FROM $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.APIKeyHash, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (db *Postgres) CountApplications(ctx context.Context, tenantID *uuid.UUID) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM applications WHERE tenant_id IS NOT DISTINCT FROM $1
	`, tenantID).Scan(&n)
	return n, err
}

// CreateApplication - 같은 테넌트에 같은 이름이 있으면 ErrConflict
func (db *Postgres) CreateApplication(ctx context.Context, app model.Application) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO applications (id, tenant_id, name, api_key_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, app.ID, app.TenantID, app.Name, app.APIKeyHash, app.IsActive, app.CreatedAt)
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// UpdateAPIKeyHash - 키 재발급. 이전 키는 즉시 무효화된다.
func (db *Postgres) UpdateAPIKeyHash(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, keyHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE applications SET api_key_hash = $3
		WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2
	`, id, tenantID, keyHash)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
