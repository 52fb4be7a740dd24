// 큐 메시지 처리 비즈니스 로직 정의
//
// 처리 흐름:
//  1. 메시지 본문 해석 (잘못된 JSON은 로그만 남기고 ack)
//  2. fingerprint 계산 후 LogEvent 저장
//  3. (application, signature) 윈도우 지표 계산 후 이상 탐지
//  4. 이상이면 활성 Incident를 증가시키거나 새로 생성 (버전 충돌 시 재시도)
//  5. LogEvent를 Incident에 연결
//  6. 후처리 (AI 분석, 검색 색인, 실시간 알림, 웹훅). 실패해도 1~5는 유지된다.
//
// 1~5의 에러는 반환되어 큐가 재전달한다.

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/anomaly"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/fingerprint"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/queue"
)

const (
	maxConflictRetries  = 3
	maxEnrichmentTerms  = 20
	defaultRecentWindow = 5
)

// processorStore - processor가 쓰는 DB 인터페이스
type processorStore interface {
	InsertLogEvent(ctx context.Context, e model.LogEvent) error
	LogEventIncident(ctx context.Context, eventID uuid.UUID) (*uuid.UUID, error)
	AnomalyMetrics(ctx context.Context, applicationID uuid.UUID, hashSignature string, now time.Time) (model.AnomalyMetrics, error)
	FindActiveIncident(ctx context.Context, applicationID uuid.UUID, hashSignature string) (*model.Incident, error)
	GetIncident(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error)
	CreateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error
	UpdateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error
	UpdateIncident(ctx context.Context, inc *model.Incident) error
	RecentMessages(ctx context.Context, applicationID uuid.UUID, hashSignature string, limit int) ([]string, error)
	GetApplicationName(ctx context.Context, applicationID uuid.UUID) (string, error)
	GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error)
	IncrementUsage(ctx context.Context, tenantID *uuid.UUID, month int, logs, aiCalls int64) error
}

// Analyzer - 텍스트 분석 (GenAI 또는 외부 분석 서비스)
type Analyzer interface {
	Analyze(ctx context.Context, messages []string) (model.TextAnalysis, error)
}

// SearchIndexer - 검색 색인
type SearchIndexer interface {
	Upsert(ctx context.Context, doc model.SearchDocument) error
}

// Notifier - 실시간 구독자 알림
type Notifier interface {
	NotifyGroup(ctx context.Context, group, event string, payload any) error
}

// IncidentDispatcher - 새 Incident 웹훅 전송
type IncidentDispatcher interface {
	DispatchIncidentCreated(ctx context.Context, inc *model.Incident, applicationName string)
}

// ProcessorConfig - 선택 collaborator. nil이면 해당 후처리를 건너뛴다.
type ProcessorConfig struct {
	Detector       *anomaly.Detector
	Analyzer       Analyzer
	Search         SearchIndexer
	Notifier       Notifier
	Webhooks       IncidentDispatcher
	RecentMessages int
}

// Processor - 로그 이벤트를 Incident로 묶는 worker
type Processor struct {
	store    processorStore
	detector *anomaly.Detector
	analyzer Analyzer
	search   SearchIndexer
	notifier Notifier
	webhooks IncidentDispatcher
	recent   int
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(store processorStore, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	detector := cfg.Detector
	if detector == nil {
		detector = anomaly.NewDetector(anomaly.DefaultConfig)
	}
	recent := cfg.RecentMessages
	if recent <= 0 {
		recent = defaultRecentWindow
	}
	return &Processor{
		store:    store,
		detector: detector,
		analyzer: cfg.Analyzer,
		search:   cfg.Search,
		notifier: cfg.Notifier,
		webhooks: cfg.Webhooks,
		recent:   recent,
		logger:   logger.With("component", "processor"),
		now:      time.Now,
	}
}

// Handle - queue.Handler
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	start := p.now()
	outcome, err := p.process(ctx, msg)
	if err == nil {
		metrics.ObserveProcessing(p.now().Sub(start), string(outcome))
	}
	return err
}

func (p *Processor) process(ctx context.Context, msg queue.Message) (model.ProcessOutcome, error) {
	var body model.LogEventMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil || body.ApplicationID == uuid.Nil {
		p.logger.Error("malformed log event message, dropping",
			"message_id", msg.ID, "correlation_id", msg.CorrelationID, "error", err)
		return model.OutcomeSkipped, nil
	}
	if body.Timestamp.IsZero() {
		body.Timestamp = p.now().UTC()
	}

	hash := fingerprint.ComputePtr(body.Message, body.Source, body.ExceptionType)
	log := p.logger.With(
		"application_id", body.ApplicationID,
		"hash", hash,
		"correlation_id", msg.CorrelationID,
	)

	event := body.ToLogEvent(hash)
	// 재전달 시 같은 행이 되도록 메시지 id를 이벤트 id로 사용
	if id, err := uuid.Parse(msg.ID); err == nil {
		event.ID = id
	}
	if err := p.store.InsertLogEvent(ctx, event); err != nil {
		return "", fmt.Errorf("failed to store log event: %w", err)
	}

	// 이전 전달에서 incident 반영이 이미 커밋됐으면 다시 세지 않는다
	linked, err := p.store.LogEventIncident(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load log event link: %w", err)
	}
	if linked != nil {
		return p.replay(ctx, log, body.TenantID, *linked)
	}

	am, err := p.store.AnomalyMetrics(ctx, body.ApplicationID, hash, p.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to compute anomaly metrics: %w", err)
	}
	result := p.detector.Evaluate(am, body.Level)
	if !result.Trigger {
		return model.OutcomeSuppressed, nil
	}
	log.Info("anomaly detected", "reason", result.Reason, "severity", result.SuggestedSeverity.String())

	inc, created, err := p.upsertIncident(ctx, body, hash, event.ID, result.SuggestedSeverity)
	if err != nil {
		return "", err
	}

	outcome := model.OutcomeUpdated
	if created {
		outcome = model.OutcomeCreated
		log.Info("incident created", "incident_id", inc.ID)
	} else {
		log.Info("incident updated", "incident_id", inc.ID, "count", inc.OccurrenceCount, "severity", inc.Severity.String())
	}

	p.postProcess(ctx, log, inc, created)
	return outcome, nil
}

// replay - incident 반영 후 ack 전에 끊긴 메시지의 재전달.
//
// 연결된 이벤트마다 발생 횟수가 1씩 늘어나므로 횟수가 1이면 이 이벤트가 연 incident다.
func (p *Processor) replay(ctx context.Context, log *slog.Logger, tenantID *uuid.UUID, incidentID uuid.UUID) (model.ProcessOutcome, error) {
	inc, err := p.store.GetIncident(ctx, tenantID, incidentID)
	if err != nil {
		return "", fmt.Errorf("failed to load linked incident: %w", err)
	}
	created := inc.OccurrenceCount == 1
	log.Info("redelivered event already applied", "incident_id", inc.ID, "created", created)

	p.postProcess(ctx, log, inc, created)
	if created {
		return model.OutcomeCreated, nil
	}
	return model.OutcomeUpdated, nil
}

// upsertIncident - 활성 Incident가 있으면 증가, 없으면 생성. 이벤트 연결도 같은 트랜잭션에서 커밋된다.
//
// 다른 worker와 충돌하면 (unique 위반 또는 버전 불일치) 다시 조회해서 병합한다.
func (p *Processor) upsertIncident(ctx context.Context, body model.LogEventMessage, hash string, eventID uuid.UUID, severity model.Severity) (*model.Incident, bool, error) {
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		existing, err := p.store.FindActiveIncident(ctx, body.ApplicationID, hash)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find active incident: %w", err)
		}

		if existing != nil {
			existing.IncrementOccurrence(body.Timestamp)
			err = p.store.UpdateIncidentForEvent(ctx, existing, eventID)
			if errors.Is(err, db.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, false, fmt.Errorf("failed to update incident: %w", err)
			}
			return existing, false, nil
		}

		inc := model.NewIncident(body.TenantID, body.ApplicationID, body.Message, hash, severity, body.Timestamp)
		desc := body.Message
		if body.StackTrace != nil && *body.StackTrace != "" {
			desc = *body.StackTrace
		}
		desc = model.Truncate(desc, model.MaxDescriptionLength)
		inc.Description = &desc

		err = p.store.CreateIncidentForEvent(ctx, inc, eventID)
		if errors.Is(err, db.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to create incident: %w", err)
		}
		return inc, true, nil
	}
	return nil, false, fmt.Errorf("incident upsert gave up after %d attempts: %w", maxConflictRetries, db.ErrConflict)
}

// ============================================================================
// 후처리 (best-effort)
// ============================================================================

type postContext struct {
	inc     *model.Incident
	created bool
	limits  model.PlanLimits
	appName string
}

type postStep struct {
	name string
	run  func(ctx context.Context, pc *postContext) error
}

func (p *Processor) postProcess(ctx context.Context, log *slog.Logger, inc *model.Incident, created bool) {
	pc := &postContext{inc: inc, created: created, appName: "Unknown"}

	limits, err := p.store.GetLimits(ctx, inc.TenantID)
	if err != nil {
		log.Warn("failed to load plan limits, using free plan", "error", err)
		limits = model.LimitsFor(model.PlanFree)
	}
	pc.limits = limits
	if name, err := p.store.GetApplicationName(ctx, inc.ApplicationID); err == nil {
		pc.appName = name
	}

	steps := []postStep{
		{name: "enrichment", run: p.enrich},
		{name: "indexing", run: p.index},
		{name: "notification", run: p.notify},
		{name: "webhook", run: p.dispatch},
	}
	for _, step := range steps {
		if err := p.runStep(ctx, step, pc); err != nil {
			metrics.PostProcessingFailed(step.name)
			log.Warn("post-processing step failed", "step", step.name, "incident_id", inc.ID, "error", err)
		}
	}
}

// runStep - panic도 해당 단계 실패로 취급
func (p *Processor) runStep(ctx context.Context, step postStep, pc *postContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.run(ctx, pc)
}

func (p *Processor) enrich(ctx context.Context, pc *postContext) error {
	if p.analyzer == nil || !pc.limits.AIEnabled {
		return nil
	}
	inc := pc.inc

	messages, err := p.store.RecentMessages(ctx, inc.ApplicationID, inc.HashSignature, p.recent)
	if err != nil {
		return fmt.Errorf("failed to load recent messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	analysis, err := p.analyzer.Analyze(ctx, messages)
	if err != nil {
		return err
	}
	result := AggregateAnalysis(analysis)

	inc.EnrichWithAIAnalysis(result, p.now().UTC())
	err = p.store.UpdateIncident(ctx, inc)
	if errors.Is(err, db.ErrConflict) {
		// 다른 worker가 먼저 갱신했으면 최신 상태에 한 번 더 병합
		latest, findErr := p.store.FindActiveIncident(ctx, inc.ApplicationID, inc.HashSignature)
		if findErr != nil || latest == nil || latest.ID != inc.ID {
			return fmt.Errorf("enrichment lost to concurrent update: %w", err)
		}
		latest.EnrichWithAIAnalysis(result, p.now().UTC())
		if err = p.store.UpdateIncident(ctx, latest); err == nil {
			*inc = *latest
		}
	}
	if err != nil {
		return fmt.Errorf("failed to persist enrichment: %w", err)
	}

	return p.store.IncrementUsage(ctx, inc.TenantID, model.UsageMonth(p.now()), 0, 1)
}

func (p *Processor) index(ctx context.Context, pc *postContext) error {
	if p.search == nil {
		return nil
	}
	return p.search.Upsert(ctx, model.NewSearchDocument(pc.inc, pc.appName))
}

func (p *Processor) notify(ctx context.Context, pc *postContext) error {
	if p.notifier == nil {
		return nil
	}
	event := model.EventIncidentUpdated
	if pc.created {
		event = model.EventIncidentCreated
	}
	return p.notifier.NotifyGroup(ctx, model.TenantGroup(pc.inc.TenantID), event, model.NewIncidentNotification(pc.inc))
}

func (p *Processor) dispatch(ctx context.Context, pc *postContext) error {
	if p.webhooks == nil || !pc.created || !pc.limits.WebhooksEnabled {
		return nil
	}
	p.webhooks.DispatchIncidentCreated(ctx, pc.inc, pc.appName)
	return nil
}

// AggregateAnalysis - 문서별 분석을 Incident 병합용 결과로 집계
//
// 감성 점수는 에러 없는 문서의 positive 평균 (없으면 0). key phrase와 entity는
// 중복 제거 후 최대 20개, entity는 "text:category" 형식이다.
func AggregateAnalysis(a model.TextAnalysis) model.AnalysisResult {
	var sum float64
	var n int
	phrases := make([]string, 0, maxEnrichmentTerms)
	entities := make([]string, 0, maxEnrichmentTerms)

	for _, doc := range a.Documents {
		if doc.Err != "" {
			continue
		}
		sum += doc.PositiveScore
		n++
		for _, kp := range doc.KeyPhrases {
			phrases = appendDistinct(phrases, strings.TrimSpace(kp))
		}
		for _, e := range doc.Entities {
			entities = appendDistinct(entities, e.Text+":"+e.Category)
		}
	}

	sentiment := 0.0
	if n > 0 {
		sentiment = sum / float64(n)
	}
	return model.AnalysisResult{
		SentimentScore:        &sentiment,
		KeyPhrases:            phrases,
		Entities:              entities,
		RootCauseSummary:      a.RootCauseSummary,
		SuggestedFix:          a.SuggestedFix,
		SeverityJustification: a.SeverityJustification,
		ConfidenceScore:       a.ConfidenceScore,
	}
}

func appendDistinct(list []string, v string) []string {
	if v == "" || len(list) >= maxEnrichmentTerms || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
