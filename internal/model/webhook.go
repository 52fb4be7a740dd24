package model

import (
	"time"

	"github.com/google/uuid"
)

// WebhookRegistration - 테넌트별 웹훅 전송 대상
type WebhookRegistration struct {
	ID       uuid.UUID  `json:"id"`
	TenantID *uuid.UUID `json:"tenant_id"`
	URL      string     `json:"url"`
	Secret   *string    `json:"-"`
	IsActive bool       `json:"is_active"`
	// BodyTemplate - 비어 있으면 기본 JSON payload를 보낸다
	BodyTemplate string    `json:"body_template"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateWebhookRequest - 웹훅 등록 요청
type CreateWebhookRequest struct {
	URL          string  `json:"url" binding:"required"`
	Secret       *string `json:"secret,omitempty"`
	BodyTemplate string  `json:"body_template"`
}

// WebhookPayload - "incident created" 웹훅 본문
type WebhookPayload struct {
	IncidentID       uuid.UUID `json:"incidentId"`
	Severity         string    `json:"severity"`
	Title            string    `json:"title"`
	RootCauseSummary *string   `json:"rootCauseSummary"`
	ApplicationName  string    `json:"applicationName"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewWebhookPayload - Incident 현재 값으로 payload 구성
func NewWebhookPayload(inc *Incident, applicationName string, now time.Time) WebhookPayload {
	return WebhookPayload{
		IncidentID:       inc.ID,
		Severity:         inc.Severity.String(),
		Title:            inc.Title,
		RootCauseSummary: inc.RootCauseSummary,
		ApplicationName:  applicationName,
		Timestamp:        now,
	}
}

// ============================================================================
// 검색 인덱스 문서
// ============================================================================

// SearchDocument - 검색 인덱스에 upsert되는 Incident 문서
type SearchDocument struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Severity        string     `json:"severity"`
	ApplicationName string     `json:"applicationName"`
	KeyPhrases      string     `json:"keyPhrases"`
	Entities        string     `json:"entities"`
	TenantID        *uuid.UUID `json:"tenantId"`
}

// NewSearchDocument - nil 필드는 빈 문자열로 채운다
func NewSearchDocument(inc *Incident, applicationName string) SearchDocument {
	return SearchDocument{
		ID:              inc.ID,
		Title:           inc.Title,
		Description:     deref(inc.Description),
		Severity:        inc.Severity.String(),
		ApplicationName: applicationName,
		KeyPhrases:      deref(inc.KeyPhrases),
		Entities:        deref(inc.Entities),
		TenantID:        inc.TenantID,
	}
}

type SearchResult struct {
	TotalCount int              `json:"total_count"`
	Documents  []SearchDocument `json:"documents"`
}

// RealtimeEvent 이름
const (
	EventIncidentCreated  = "IncidentCreated"
	EventIncidentUpdated  = "IncidentUpdated"
	EventIncidentResolved = "IncidentResolved"
	EventIncidentClosed   = "IncidentClosed"
)

// IncidentNotification - 실시간 구독자에게 보내는 payload
type IncidentNotification struct {
	IncidentID      uuid.UUID `json:"incidentId"`
	Title           string    `json:"title"`
	Severity        string    `json:"severity"`
	Status          string    `json:"status"`
	OccurrenceCount int       `json:"occurrenceCount"`
	ApplicationID   uuid.UUID `json:"applicationId"`
}

func NewIncidentNotification(inc *Incident) IncidentNotification {
	return IncidentNotification{
		IncidentID:      inc.ID,
		Title:           inc.Title,
		Severity:        inc.Severity.String(),
		Status:          inc.Status.String(),
		OccurrenceCount: inc.OccurrenceCount,
		ApplicationID:   inc.ApplicationID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
