package model

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// 이상 탐지 지표
// ============================================================================

// AnomalyMetrics - (application, hash signature) 단위로 매번 계산되는 윈도우 지표
//
// AverageHourlyBaseline은 최근 7일 동안 이벤트가 있었던 시간 구간의 평균 건수이다.
type AnomalyMetrics struct {
	EventsLast5Min        int     `json:"events_last_5min"`
	EventsLast1Hour       int     `json:"events_last_1hour"`
	EventsLast24Hours     int     `json:"events_last_24hours"`
	AverageHourlyBaseline float64 `json:"average_hourly_baseline"`
	StandardDeviation     float64 `json:"standard_deviation"`
}

// AnomalyReason - 이상 탐지 사유
type AnomalyReason string

const (
	ReasonNone              AnomalyReason = "None"
	ReasonSpikeDetected     AnomalyReason = "SpikeDetected"
	ReasonBurstDetected     AnomalyReason = "BurstDetected"
	ReasonImmediateCritical AnomalyReason = "ImmediateCritical"
)

// ============================================================================
// AI 분석 결과
// ============================================================================

// Entity - 텍스트 분석이 인식한 개체
type Entity struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// DocumentAnalysis - 메시지 1건에 대한 분석 결과. Err가 있으면 집계에서 제외된다.
type DocumentAnalysis struct {
	PositiveScore float64  `json:"positive_score"`
	KeyPhrases    []string `json:"key_phrases"`
	Entities      []Entity `json:"entities"`
	Err           string   `json:"error,omitempty"`
}

// TextAnalysis - 텍스트 분석 서비스 응답
type TextAnalysis struct {
	Documents             []DocumentAnalysis `json:"documents"`
	RootCauseSummary      *string            `json:"root_cause_summary"`
	SuggestedFix          *string            `json:"suggested_fix"`
	SeverityJustification *string            `json:"severity_justification"`
	ConfidenceScore       *float64           `json:"confidence_score"`
}

// AnalysisResult - Incident에 병합되는 최종 분석 결과
type AnalysisResult struct {
	SentimentScore        *float64
	KeyPhrases            []string
	Entities              []string
	RootCauseSummary      *string
	SuggestedFix          *string
	SeverityJustification *string
	ConfidenceScore       *float64
}

// ProcessOutcome - 메시지 1건의 처리 결과
type ProcessOutcome string

const (
	OutcomeSuppressed ProcessOutcome = "suppressed"
	OutcomeCreated    ProcessOutcome = "created"
	OutcomeUpdated    ProcessOutcome = "updated"
	OutcomeSkipped    ProcessOutcome = "skipped"
)

// SimilarIncident - 임베딩 유사도 검색 결과
type SimilarIncident struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	Similarity float64   `json:"similarity"`
	LastSeen   time.Time `json:"last_seen"`
}
