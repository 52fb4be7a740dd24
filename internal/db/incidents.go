package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kube-rca/ingest/internal/model"
)

const incidentColumns = `
	id, tenant_id, application_id, title, description, severity, status, hash_signature,
	occurrence_count, first_occurrence, last_occurrence,
	sentiment_score, key_phrases, entities, root_cause_summary, suggested_fix,
	severity_justification, confidence_score, ai_analyzed_at,
	resolved_at, resolved_by, version, created_at`

func scanIncident(row pgx.Row) (*model.Incident, error) {
	var i model.Incident
	var severity, status string
	err := row.Scan(
		&i.ID, &i.TenantID, &i.ApplicationID, &i.Title, &i.Description, &severity, &status, &i.HashSignature,
		&i.OccurrenceCount, &i.FirstOccurrence, &i.LastOccurrence,
		&i.SentimentScore, &i.KeyPhrases, &i.Entities, &i.RootCauseSummary, &i.SuggestedFix,
		&i.SeverityJustification, &i.ConfidenceScore, &i.AIAnalyzedAt,
		&i.ResolvedAt, &i.ResolvedBy, &i.Version, &i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if i.Severity, err = model.ParseSeverity(severity); err != nil {
		return nil, err
	}
	if i.Status, err = model.ParseStatus(status); err != nil {
		return nil, err
	}
	return &i, nil
}

// FindActiveIncident - 종료되지 않은 incident 조회. 없으면 (nil, nil)
func (db *Postgres) FindActiveIncident(ctx context.Context, applicationID uuid.UUID, hashSignature string) (*model.Incident, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE application_id = $1 AND hash_signature = $2 AND status NOT IN ('Resolved', 'Closed')
	`, applicationID, hashSignature)
	inc, err := scanIncident(row)
	if IsNoRows(err) {
		return nil, nil
	}
	return inc, err
}

// GetIncident - 테넌트 범위에서 단건 조회
func (db *Postgres) GetIncident(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2
	`, id, tenantID)
	inc, err := scanIncident(row)
	if IsNoRows(err) {
		return nil, ErrNotFound
	}
	return inc, err
}

// querier - pgxpool.Pool과 pgx.Tx 공통
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpdateIncident - version이 일치할 때만 갱신하고 version을 1 올린다
func (db *Postgres) UpdateIncident(ctx context.Context, inc *model.Incident) error {
	return updateIncident(ctx, db.Pool, inc)
}

// CreateIncidentForEvent - incident 생성과 이벤트 연결을 한 트랜잭션으로 커밋.
// 활성 시그니처가 이미 있으면 ErrConflict
func (db *Postgres) CreateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error {
	return db.withEventLink(ctx, inc.ID, eventID, func(q querier) error {
		return createIncident(ctx, q, inc)
	})
}

// UpdateIncidentForEvent - 발생 횟수 갱신과 이벤트 연결을 한 트랜잭션으로 커밋
func (db *Postgres) UpdateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error {
	version := inc.Version
	err := db.withEventLink(ctx, inc.ID, eventID, func(q querier) error {
		return updateIncident(ctx, q, inc)
	})
	if err != nil {
		// 롤백됐으므로 메모리 상의 version도 되돌린다
		inc.Version = version
	}
	return err
}

func (db *Postgres) withEventLink(ctx context.Context, incidentID, eventID uuid.UUID, write func(q querier) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := write(tx); err != nil {
		return err
	}
	if err := linkLogEvent(ctx, tx, eventID, incidentID); err != nil {
		return fmt.Errorf("failed to link log event: %w", err)
	}
	return tx.Commit(ctx)
}

func createIncident(ctx context.Context, q querier, inc *model.Incident) error {
	err := q.QueryRow(ctx, `
		INSERT INTO incidents (
			id, tenant_id, application_id, title, description, severity, status, hash_signature,
			occurrence_count, first_occurrence, last_occurrence, version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, NOW())
		RETURNING version, created_at
	`,
		inc.ID, inc.TenantID, inc.ApplicationID, inc.Title, inc.Description,
		inc.Severity.String(), inc.Status.String(), inc.HashSignature,
		inc.OccurrenceCount, inc.FirstOccurrence, inc.LastOccurrence,
	).Scan(&inc.Version, &inc.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: active incident exists for signature %s", ErrConflict, inc.HashSignature)
	}
	return err
}

func updateIncident(ctx context.Context, q querier, inc *model.Incident) error {
	tag, err := q.Exec(ctx, `
		UPDATE incidents
		SET
			title = $3,
			description = $4,
			severity = $5,
			status = $6,
			occurrence_count = $7,
			last_occurrence = $8,
			sentiment_score = $9,
			key_phrases = $10,
			entities = $11,
			root_cause_summary = $12,
			suggested_fix = $13,
			severity_justification = $14,
			confidence_score = $15,
			ai_analyzed_at = $16,
			resolved_at = $17,
			resolved_by = $18,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		inc.ID, inc.Version,
		inc.Title, inc.Description, inc.Severity.String(), inc.Status.String(),
		inc.OccurrenceCount, inc.LastOccurrence,
		inc.SentimentScore, inc.KeyPhrases, inc.Entities, inc.RootCauseSummary, inc.SuggestedFix,
		inc.SeverityJustification, inc.ConfidenceScore, inc.AIAnalyzedAt,
		inc.ResolvedAt, inc.ResolvedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: incident %s changed since version %d", ErrConflict, inc.ID, inc.Version)
	}
	inc.Version++
	return nil
}

var incidentOrderBy = map[model.IncidentSortField]string{
	model.SortByLastOccurrence:  "last_occurrence",
	model.SortByFirstOccurrence: "first_occurrence",
	model.SortBySeverity:        "CASE severity WHEN 'Critical' THEN 3 WHEN 'High' THEN 2 WHEN 'Medium' THEN 1 ELSE 0 END",
	model.SortByOccurrenceCount: "occurrence_count",
}

// ListIncidents - 정렬 기준은 허용 목록에서만 고른다
func (db *Postgres) ListIncidents(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error) {
	orderBy, ok := incidentOrderBy[q.SortBy]
	if !ok {
		orderBy = incidentOrderBy[model.SortByLastOccurrence]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	if q.Take <= 0 || q.Take > 100 {
		q.Take = 20
	}

	var status *string
	if q.Status != nil {
		s := q.Status.String()
		status = &s
	}

	res := model.IncidentListResponse{Items: []model.Incident{}}
	where := `
		WHERE tenant_id IS NOT DISTINCT FROM $1
		  AND ($2::uuid IS NULL OR application_id = $2)
		  AND ($3::text IS NULL OR status = $3)`

	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`+where,
		q.TenantID, q.ApplicationID, status).Scan(&res.TotalCount); err != nil {
		return res, err
	}

	rows, err := db.Pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents`+where+
		fmt.Sprintf(" ORDER BY %s %s, id LIMIT $4 OFFSET $5", orderBy, direction),
		q.TenantID, q.ApplicationID, status, q.Take, q.Skip)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return res, err
		}
		res.Items = append(res.Items, *inc)
	}
	return res, rows.Err()
}

// InsertIncidentComment - 외부 API에서만 호출된다
func (db *Postgres) InsertIncidentComment(ctx context.Context, c model.IncidentComment) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO incident_comments (id, incident_id, tenant_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.IncidentID, c.TenantID, c.AuthorID, c.Content, c.CreatedAt)
	return err
}

func (db *Postgres) ListIncidentComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, incident_id, tenant_id, author_id, content, created_at
		FROM incident_comments
		WHERE incident_id = $1 AND tenant_id IS NOT DISTINCT FROM $2
		ORDER BY created_at DESC
	`, incidentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []model.IncidentComment{}
	for rows.Next() {
		var c model.IncidentComment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.TenantID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
