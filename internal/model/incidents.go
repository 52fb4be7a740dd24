package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 512
	MaxDescriptionLength = 4000
)

// ErrIncidentTerminal - 이미 종료된 Incident에 상태 변경을 시도한 경우
var ErrIncidentTerminal = errors.New("incident is already resolved or closed")

// ============================================================================
// Incident 모델 (반복되는 장애 시그니처 단위)
// ============================================================================

// Incident - 같은 (application, hash signature)로 묶인 로그 이벤트의 집합
//
// 하나의 (application, hash signature)에는 종료되지 않은 Incident가 최대 1개만 존재한다.
type Incident struct {
	ID              uuid.UUID  `json:"incident_id"`
	TenantID        *uuid.UUID `json:"tenant_id"`
	ApplicationID   uuid.UUID  `json:"application_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	Severity        Severity   `json:"severity" swaggertype:"string"`
	Status          Status     `json:"status" swaggertype:"string"`
	HashSignature   string     `json:"hash_signature"`
	OccurrenceCount int        `json:"occurrence_count"`
	FirstOccurrence time.Time  `json:"first_occurrence"`
	LastOccurrence  time.Time  `json:"last_occurrence"`

	// AI 분석 결과 (선택)
	SentimentScore        *float64   `json:"sentiment_score"`
	KeyPhrases            *string    `json:"key_phrases"`
	Entities              *string    `json:"entities"`
	RootCauseSummary      *string    `json:"root_cause_summary"`
	SuggestedFix          *string    `json:"suggested_fix"`
	SeverityJustification *string    `json:"severity_justification"`
	ConfidenceScore       *float64   `json:"confidence_score"`
	AIAnalyzedAt          *time.Time `json:"ai_analyzed_at"`

	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy *uuid.UUID `json:"resolved_by"`

	// 낙관적 동시성 토큰. 저장소가 UPDATE마다 1씩 올린다.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIncident - 최초 이상 탐지 시 Open 상태의 Incident 생성
func NewIncident(tenantID *uuid.UUID, applicationID uuid.UUID, title, hashSignature string, severity Severity, firstOccurrence time.Time) *Incident {
	return &Incident{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ApplicationID:   applicationID,
		Title:           Truncate(title, MaxTitleLength),
		Severity:        severity,
		Status:          StatusOpen,
		HashSignature:   hashSignature,
		OccurrenceCount: 1,
		FirstOccurrence: firstOccurrence,
		LastOccurrence:  firstOccurrence,
	}
}

func (i *Incident) IsTerminal() bool {
	return i.Status.IsTerminal()
}

// IncrementOccurrence - 발생 횟수를 올리고 누적 횟수에 따라 심각도를 상향
//
// 심각도는 올라가기만 하고 내려가지 않는다.
func (i *Incident) IncrementOccurrence(ts time.Time) {
	i.OccurrenceCount++
	i.LastOccurrence = ts
	i.escalate()
}

func (i *Incident) escalate() {
	target := i.Severity
	switch {
	case i.OccurrenceCount >= 100:
		target = SeverityCritical
	case i.OccurrenceCount >= 50:
		target = SeverityHigh
	case i.OccurrenceCount >= 10:
		target = SeverityMedium
	}
	if target > i.Severity {
		i.Severity = target
	}
}

// EnrichWithAIAnalysis - AI 분석 결과로 필드를 덮어쓴다 (last write wins)
func (i *Incident) EnrichWithAIAnalysis(result AnalysisResult, now time.Time) {
	i.SentimentScore = result.SentimentScore
	i.KeyPhrases = joinOrNil(result.KeyPhrases)
	i.Entities = joinOrNil(result.Entities)
	i.RootCauseSummary = result.RootCauseSummary
	i.SuggestedFix = result.SuggestedFix
	i.SeverityJustification = result.SeverityJustification
	i.ConfidenceScore = result.ConfidenceScore
	analyzedAt := now
	i.AIAnalyzedAt = &analyzedAt
}

// Resolve - 사용자 조치로 Incident 종료
//
// 종료된 Incident는 재사용하지 않는다. 같은 시그니처의 다음 이상은 새 Incident를 연다.
func (i *Incident) Resolve(userID uuid.UUID, now time.Time) error {
	if i.IsTerminal() {
		return ErrIncidentTerminal
	}
	i.Status = StatusResolved
	resolvedAt := now
	i.ResolvedAt = &resolvedAt
	by := userID
	i.ResolvedBy = &by
	return nil
}

func (i *Incident) Close() error {
	if i.IsTerminal() {
		return ErrIncidentTerminal
	}
	i.Status = StatusClosed
	return nil
}

// IncidentComment - Incident에 달린 메모. 외부에서만 생성되며 수정되지 않는다.
type IncidentComment struct {
	ID         uuid.UUID  `json:"comment_id"`
	IncidentID uuid.UUID  `json:"incident_id"`
	TenantID   *uuid.UUID `json:"tenant_id"`
	AuthorID   uuid.UUID  `json:"author_id"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ============================================================================
// 조회/정렬
// ============================================================================

// IncidentSortField - 목록 조회에 허용되는 정렬 기준
type IncidentSortField string

const (
	SortByLastOccurrence  IncidentSortField = "lastOccurrence"
	SortByFirstOccurrence IncidentSortField = "firstOccurrence"
	SortBySeverity        IncidentSortField = "severity"
	SortByOccurrenceCount IncidentSortField = "occurrenceCount"
)

// ParseIncidentSortField - 빈 값은 lastOccurrence로 처리
func ParseIncidentSortField(s string) (IncidentSortField, bool) {
	switch IncidentSortField(s) {
	case "":
		return SortByLastOccurrence, true
	case SortByLastOccurrence, SortByFirstOccurrence, SortBySeverity, SortByOccurrenceCount:
		return IncidentSortField(s), true
	}
	return "", false
}

// IncidentListQuery - 테넌트 범위의 Incident 목록 조회 조건
type IncidentListQuery struct {
	TenantID      *uuid.UUID
	ApplicationID *uuid.UUID
	Status        *Status
	SortBy        IncidentSortField
	Descending    bool
	Skip          int
	Take          int
}

type IncidentListResponse struct {
	TotalCount int        `json:"total_count"`
	Items      []Incident `json:"items"`
}

// Truncate - 문자 단위(rune)로 자른다
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for idx := range s {
		if count == max {
			return s[:idx]
		}
		count++
	}
	return s
}

func joinOrNil(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	joined := strings.Join(items, ", ")
	return &joined
}

// CreateCommentRequest - 코멘트 작성 요청
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}
