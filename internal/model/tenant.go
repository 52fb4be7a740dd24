package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// 요금제 / 구독
// ============================================================================

type Plan string

const (
	PlanFree       Plan = "Free"
	PlanPro        Plan = "Pro"
	PlanEnterprise Plan = "Enterprise"
)

// PlanLimits - 요금제별 수집 한도와 부가 기능
type PlanLimits struct {
	Plan            Plan `json:"plan"`
	LogsPerMonth    int  `json:"logs_per_month"`
	MaxApplications int  `json:"max_applications"`
	RetentionDays   int  `json:"retention_days"`
	AIEnabled       bool `json:"ai_enabled"`
	WebhooksEnabled bool `json:"webhooks_enabled"`
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:       {Plan: PlanFree, LogsPerMonth: 10_000, MaxApplications: 3, RetentionDays: 7},
	PlanPro:        {Plan: PlanPro, LogsPerMonth: 500_000, MaxApplications: 20, RetentionDays: 30, AIEnabled: true, WebhooksEnabled: true},
	PlanEnterprise: {Plan: PlanEnterprise, LogsPerMonth: 10_000_000, MaxApplications: 100, RetentionDays: 90, AIEnabled: true, WebhooksEnabled: true},
}

// LimitsFor - 알 수 없는 요금제는 Free로 취급
func LimitsFor(plan Plan) PlanLimits {
	for p, limits := range planLimits {
		if strings.EqualFold(string(p), string(plan)) {
			return limits
		}
	}
	return planLimits[PlanFree]
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "Active"
	SubscriptionPastDue  SubscriptionStatus = "PastDue"
	SubscriptionCanceled SubscriptionStatus = "Canceled"
)

type Subscription struct {
	TenantID  uuid.UUID          `json:"tenant_id"`
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Application - 로그를 보내는 모니터링 대상 애플리케이션
type Application struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   *uuid.UUID `json:"tenant_id"`
	Name       string     `json:"name"`
	APIKeyHash string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateApplicationRequest - 애플리케이션 등록 요청
type CreateApplicationRequest struct {
	Name string `json:"name" binding:"required"`
}

// APIKeyResult - 발급된 API key. 원문은 이 응답에서만 노출된다.
type APIKeyResult struct {
	ApplicationID uuid.UUID `json:"application_id"`
	APIKey        string    `json:"api_key"`
}

// MonthlyUsage - 테넌트별 월간 사용량. Month는 YYYYMM 형식이다.
type MonthlyUsage struct {
	TenantID     *uuid.UUID `json:"tenant_id"`
	Month        int        `json:"month"`
	LogsIngested int64      `json:"logs_ingested"`
	AICallsUsed  int64      `json:"ai_calls_used"`
}

// UsageMonth - 시각을 YYYYMM 정수로 변환
func UsageMonth(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// TenantGroup - 실시간 알림 그룹 이름. 테넌트가 없으면 host 그룹이다.
func TenantGroup(tenantID *uuid.UUID) string {
	if tenantID == nil {
		return "host"
	}
	return "tenant_" + tenantID.String()
}

// UsageResponse - 이번 달 사용량과 요금제 한도
type UsageResponse struct {
	Month        int        `json:"month"`
	LogsIngested int64      `json:"logs_ingested"`
	AICallsUsed  int64      `json:"ai_calls_used"`
	Limits       PlanLimits `json:"limits"`
}
