package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/anomaly"
	"github.com/kube-rca/ingest/internal/model"
)

func (db *Postgres) InsertLogEvent(ctx context.Context, e model.LogEvent) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO log_events (
			id, tenant_id, application_id, level, message, source, exception_type,
			stack_trace, correlation_id, hash_signature, timestamp, incident_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		e.ID, e.TenantID, e.ApplicationID, string(e.Level), e.Message, e.Source, e.ExceptionType,
		e.StackTrace, e.CorrelationID, e.HashSignature, e.Timestamp, e.IncidentID,
	)
	return err
}

// linkLogEvent - 이벤트에 incident id 연결 (LogEvent에서 유일하게 변경되는 필드)
func linkLogEvent(ctx context.Context, q querier, eventID, incidentID uuid.UUID) error {
	_, err := q.Exec(ctx, `UPDATE log_events SET incident_id = $2 WHERE id = $1`, eventID, incidentID)
	return err
}

// LogEventIncident - 이벤트에 연결된 incident id. 연결 전이면 nil
func (db *Postgres) LogEventIncident(ctx context.Context, eventID uuid.UUID) (*uuid.UUID, error) {
	var incidentID *uuid.UUID
	err := db.Pool.QueryRow(ctx, `SELECT incident_id FROM log_events WHERE id = $1`, eventID).Scan(&incidentID)
	if IsNoRows(err) {
		return nil, nil
	}
	return incidentID, err
}

// AnomalyMetrics - (application, signature)의 윈도우별 건수와 7일 시간대 baseline
func (db *Postgres) AnomalyMetrics(ctx context.Context, applicationID uuid.UUID, hashSignature string, now time.Time) (model.AnomalyMetrics, error) {
	var m model.AnomalyMetrics
	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE timestamp >= $3),
			COUNT(*) FILTER (WHERE timestamp >= $4),
			COUNT(*) FILTER (WHERE timestamp >= $5)
		FROM log_events
		WHERE application_id = $1 AND hash_signature = $2 AND timestamp >= $5
	`, applicationID, hashSignature,
		now.Add(-5*time.Minute), now.Add(-time.Hour), now.Add(-24*time.Hour),
	).Scan(&m.EventsLast5Min, &m.EventsLast1Hour, &m.EventsLast24Hours)
	if err != nil {
		return m, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT COUNT(*)
		FROM log_events
		WHERE application_id = $1 AND hash_signature = $2 AND timestamp >= $3
		GROUP BY date_trunc('hour', timestamp)
	`, applicationID, hashSignature, now.Add(-7*24*time.Hour))
	if err != nil {
		return m, err
	}
	defer rows.Close()

	var hourly []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return m, err
		}
		hourly = append(hourly, c)
	}
	if err := rows.Err(); err != nil {
		return m, err
	}

	m.AverageHourlyBaseline, m.StandardDeviation = anomaly.Baseline(hourly)
	return m, nil
}

// RecentMessages - 시그니처의 최근 메시지 limit건
func (db *Postgres) RecentMessages(ctx context.Context, applicationID uuid.UUID, hashSignature string, limit int) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT message
		FROM log_events
		WHERE application_id = $1 AND hash_signature = $2
		ORDER BY timestamp DESC
		LIMIT $3
	`, applicationID, hashSignature, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteLogEventsBefore - 테넌트의 cutoff 이전 이벤트를 오래된 순으로 최대 batchSize건 삭제
func (db *Postgres) DeleteLogEventsBefore(ctx context.Context, tenantID *uuid.UUID, cutoff time.Time, batchSize int) (int, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM log_events
		WHERE id IN (
			SELECT id FROM log_events
			WHERE tenant_id IS NOT DISTINCT FROM $1 AND timestamp < $2
			ORDER BY timestamp
			LIMIT $3
		)
	`, tenantID, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListLogEventsBefore - 모든 테넌트에서 cutoff 이전 이벤트를 오래된 순으로 조회
func (db *Postgres) ListLogEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.LogEvent, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, application_id, level, message, source, exception_type,
			stack_trace, correlation_id, hash_signature, timestamp, incident_id
		FROM log_events
		WHERE timestamp < $1
		ORDER BY timestamp
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.LogEvent
	for rows.Next() {
		var e model.LogEvent
		var level string
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.ApplicationID, &level, &e.Message, &e.Source, &e.ExceptionType,
			&e.StackTrace, &e.CorrelationID, &e.HashSignature, &e.Timestamp, &e.IncidentID,
		); err != nil {
			return nil, err
		}
		e.Level = model.Level(level)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (db *Postgres) DeleteLogEvents(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx, `DELETE FROM log_events WHERE id = ANY($1)`, ids)
	return err
}
