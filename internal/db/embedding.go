package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/pgvector/pgvector-go"
)

func (db *Postgres) UpdateSearchEmbedding(ctx context.Context, incidentID uuid.UUID, vector []float32) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE incident_search_documents SET embedding = $2 WHERE incident_id = $1
	`, incidentID, pgvector.NewVector(vector))
	return err
}

// SimilarIncidents - 같은 테넌트에서 임베딩 cosine 거리가 가까운 incident
func (db *Postgres) SimilarIncidents(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID, limit int) ([]model.SimilarIncident, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT d.incident_id, d.title, d.severity, 1 - (d.embedding <=> s.embedding) AS similarity, i.last_occurrence
		FROM incident_search_documents s
		JOIN incident_search_documents d
		  ON d.incident_id <> s.incident_id
		 AND d.tenant_id IS NOT DISTINCT FROM s.tenant_id
		 AND d.embedding IS NOT NULL
		JOIN incidents i ON i.id = d.incident_id
		WHERE s.incident_id = $1
		  AND s.tenant_id IS NOT DISTINCT FROM $2
		  AND s.embedding IS NOT NULL
		ORDER BY d.embedding <=> s.embedding
		LIMIT $3
	`, incidentID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	similar := []model.SimilarIncident{}
	for rows.Next() {
		var si model.SimilarIncident
		if err := rows.Scan(&si.IncidentID, &si.Title, &si.Severity, &si.Similarity, &si.LastSeen); err != nil {
			return nil, err
		}
		similar = append(similar, si)
	}
	return similar, rows.Err()
}
