package db

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

// Embedder - 검색 문서 임베딩 생성 (선택)
type Embedder interface {
	EmbedDocument(ctx context.Context, doc model.SearchDocument) ([]float32, error)
}

// SearchIndex - incident 검색 문서 저장소 (PostgreSQL full-text + pgvector)
type SearchIndex struct {
	db       *Postgres
	embedder Embedder
}

// NewSearchIndex - embedder가 nil이면 유사도 검색용 임베딩은 저장하지 않는다
func NewSearchIndex(db *Postgres, embedder Embedder) *SearchIndex {
	return &SearchIndex{db: db, embedder: embedder}
}

// Upsert - 문서를 저장한 뒤 임베딩을 갱신한다. 임베딩 실패는 문서 저장을 되돌리지 않는다.
func (s *SearchIndex) Upsert(ctx context.Context, doc model.SearchDocument) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO incident_search_documents (
			incident_id, tenant_id, title, description, severity, application_name, key_phrases, entities, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (incident_id) DO UPDATE
		SET title = EXCLUDED.title,
			description = EXCLUDED.description,
			severity = EXCLUDED.severity,
			application_name = EXCLUDED.application_name,
			key_phrases = EXCLUDED.key_phrases,
			entities = EXCLUDED.entities,
			updated_at = NOW()
	`, doc.ID, doc.TenantID, doc.Title, doc.Description, doc.Severity, doc.ApplicationName, doc.KeyPhrases, doc.Entities)
	if err != nil {
		return err
	}

	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.EmbedDocument(ctx, doc)
	if err != nil {
		return err
	}
	return s.db.UpdateSearchEmbedding(ctx, doc.ID, vector)
}

func (s *SearchIndex) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM incident_search_documents WHERE incident_id = $1`, id)
	return err
}

// Search - 테넌트 범위 full-text 검색. query가 비어 있으면 최근 갱신순.
func (s *SearchIndex) Search(ctx context.Context, query string, tenantID *uuid.UUID, skip, take int) (model.SearchResult, error) {
	if take <= 0 || take > 100 {
		take = 20
	}
	if skip < 0 {
		skip = 0
	}
	query = strings.TrimSpace(query)

	res := model.SearchResult{Documents: []model.SearchDocument{}}
	where := `
		WHERE tenant_id IS NOT DISTINCT FROM $1
		  AND ($2 = '' OR search_vector @@ websearch_to_tsquery('simple', $2))`

	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM incident_search_documents`+where,
		tenantID, query).Scan(&res.TotalCount); err != nil {
		return res, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT incident_id, tenant_id, title, description, severity, application_name, key_phrases, entities
		FROM incident_search_documents`+where+`
		ORDER BY CASE WHEN $2 = '' THEN 0 ELSE ts_rank(search_vector, websearch_to_tsquery('simple', $2)) END DESC,
			updated_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, query, take, skip)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	for rows.Next() {
		var d model.SearchDocument
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Description, &d.Severity,
			&d.ApplicationName, &d.KeyPhrases, &d.Entities); err != nil {
			return res, err
		}
		res.Documents = append(res.Documents, d)
	}
	return res, rows.Err()
}
