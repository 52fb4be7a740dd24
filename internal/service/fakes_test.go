package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/queue"
)

// fakeStore - 테스트용 메모리 저장소. service 패키지의 DB 인터페이스를 모두 구현한다.
type fakeStore struct {
	mu sync.Mutex

	apps      map[string]*model.Application
	appNames  map[uuid.UUID]string
	subs      map[uuid.UUID]*model.Subscription
	usage     map[string]*model.MonthlyUsage
	events    []model.LogEvent
	incidents map[uuid.UUID]*model.Incident
	comments  []model.IncidentComment
	failed    []model.FailedLogEvent
	webhooks  []model.WebhookRegistration
	tenants   []uuid.UUID

	metrics model.AnomalyMetrics
	recent  []string

	// createConflicts - CreateIncidentForEvent가 ErrConflict를 반환할 횟수. 반환 시 경쟁 worker의 incident를 심는다.
	createConflicts int
	updateErr       error
	// linkErrs - incident 반영 트랜잭션의 이벤트 연결 단계에서 차례로 반환할 에러. 실패하면 아무것도 저장하지 않는다.
	linkErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:      map[string]*model.Application{},
		appNames:  map[uuid.UUID]string{},
		subs:      map[uuid.UUID]*model.Subscription{},
		usage:     map[string]*model.MonthlyUsage{},
		incidents: map[uuid.UUID]*model.Incident{},
	}
}

func usageKey(tenantID *uuid.UUID, month int) string {
	return fmt.Sprintf("%s:%d", model.TenantGroup(tenantID), month)
}

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ---- applications / subscriptions / usage ----

func (f *fakeStore) addApp(tenantID *uuid.UUID, name, apiKey string, active bool) *model.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	app := &model.Application{ID: uuid.New(), TenantID: tenantID, Name: name, APIKeyHash: HashAPIKey(apiKey), IsActive: active}
	f.apps[app.APIKeyHash] = app
	f.appNames[app.ID] = name
	return app
}

func (f *fakeStore) setPlan(tenantID uuid.UUID, plan model.Plan, status model.SubscriptionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[tenantID] = &model.Subscription{TenantID: tenantID, Plan: plan, Status: status}
}

func (f *fakeStore) GetApplicationByKeyHash(ctx context.Context, keyHash string) (*model.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[keyHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (f *fakeStore) GetApplicationName(ctx context.Context, applicationID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.appNames[applicationID]
	if !ok {
		return "", db.ErrNotFound
	}
	return name, nil
}

func (f *fakeStore) GetSubscription(ctx context.Context, tenantID *uuid.UUID) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tenantID == nil {
		return nil, nil
	}
	sub, ok := f.subs[*tenantID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error) {
	sub, _ := f.GetSubscription(ctx, tenantID)
	if sub == nil {
		return model.LimitsFor(model.PlanFree), nil
	}
	return model.LimitsFor(sub.Plan), nil
}

func (f *fakeStore) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.tenants...), nil
}

func (f *fakeStore) GetMonthlyUsage(ctx context.Context, tenantID *uuid.UUID, month int) (model.MonthlyUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.usage[usageKey(tenantID, month)]; ok {
		return *u, nil
	}
	return model.MonthlyUsage{TenantID: tenantID, Month: month}, nil
}

func (f *fakeStore) IncrementUsage(ctx context.Context, tenantID *uuid.UUID, month int, logs, aiCalls int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := usageKey(tenantID, month)
	u, ok := f.usage[key]
	if !ok {
		u = &model.MonthlyUsage{TenantID: tenantID, Month: month}
		f.usage[key] = u
	}
	u.LogsIngested += logs
	u.AICallsUsed += aiCalls
	return nil
}

func (f *fakeStore) ListApplications(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Application
	for _, a := range f.apps {
		if sameTenant(a.TenantID, tenantID) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) CountApplications(ctx context.Context, tenantID *uuid.UUID) (int, error) {
	apps, _ := f.ListApplications(ctx, tenantID)
	return len(apps), nil
}

func (f *fakeStore) CreateApplication(ctx context.Context, app model.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if sameTenant(a.TenantID, app.TenantID) && a.Name == app.Name {
			return db.ErrConflict
		}
	}
	cp := app
	f.apps[app.APIKeyHash] = &cp
	f.appNames[app.ID] = app.Name
	return nil
}

func (f *fakeStore) UpdateAPIKeyHash(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, keyHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, a := range f.apps {
		if a.ID == id && sameTenant(a.TenantID, tenantID) {
			delete(f.apps, hash)
			a.APIKeyHash = keyHash
			f.apps[keyHash] = a
			return nil
		}
	}
	return db.ErrNotFound
}

// ---- log events ----

func (f *fakeStore) InsertLogEvent(ctx context.Context, e model.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.ID == e.ID {
			return nil
		}
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeStore) LogEventIncident(ctx context.Context, eventID uuid.UUID) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == eventID && e.IncidentID != nil {
			id := *e.IncidentID
			return &id, nil
		}
	}
	return nil, nil
}

// linkEvent - mu를 잡은 상태에서 호출
func (f *fakeStore) linkEvent(eventID, incidentID uuid.UUID) error {
	if len(f.linkErrs) > 0 {
		err := f.linkErrs[0]
		f.linkErrs = f.linkErrs[1:]
		if err != nil {
			return fmt.Errorf("failed to link log event: %w", err)
		}
	}
	for i := range f.events {
		if f.events[i].ID == eventID {
			id := incidentID
			f.events[i].IncidentID = &id
		}
	}
	return nil
}

func (f *fakeStore) AnomalyMetrics(ctx context.Context, applicationID uuid.UUID, hashSignature string, now time.Time) (model.AnomalyMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics, nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, applicationID uuid.UUID, hashSignature string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recent) > limit {
		return append([]string(nil), f.recent[:limit]...), nil
	}
	return append([]string(nil), f.recent...), nil
}

func (f *fakeStore) DeleteLogEventsBefore(ctx context.Context, tenantID *uuid.UUID, cutoff time.Time, batchSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.events[:0]
	deleted := 0
	for _, e := range f.events {
		if deleted < batchSize && sameTenant(e.TenantID, tenantID) && e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeStore) ListLogEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.LogEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LogEvent
	for _, e := range f.events {
		if e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteLogEvents(ctx context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.events[:0]
	for _, e := range f.events {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}

func (f *fakeStore) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// ---- incidents ----

func (f *fakeStore) FindActiveIncident(ctx context.Context, applicationID uuid.UUID, hashSignature string) (*model.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inc := range f.incidents {
		if inc.ApplicationID == applicationID && inc.HashSignature == hashSignature && !inc.IsTerminal() {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createConflicts > 0 {
		f.createConflicts--
		rival := model.NewIncident(inc.TenantID, inc.ApplicationID, inc.Title, inc.HashSignature, inc.Severity, inc.FirstOccurrence)
		rival.Version = 1
		f.incidents[rival.ID] = rival
		return db.ErrConflict
	}
	for _, existing := range f.incidents {
		if existing.ApplicationID == inc.ApplicationID && existing.HashSignature == inc.HashSignature && !existing.IsTerminal() {
			return db.ErrConflict
		}
	}
	if err := f.linkEvent(eventID, inc.ID); err != nil {
		return err
	}
	inc.Version = 1
	cp := *inc
	f.incidents[inc.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateIncidentForEvent(ctx context.Context, inc *model.Incident, eventID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.incidents[inc.ID]
	if !ok || stored.Version != inc.Version {
		return db.ErrConflict
	}
	if err := f.linkEvent(eventID, inc.ID); err != nil {
		return err
	}
	inc.Version++
	cp := *inc
	f.incidents[inc.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateIncident(ctx context.Context, inc *model.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.incidents[inc.ID]
	if !ok || stored.Version != inc.Version {
		return db.ErrConflict
	}
	inc.Version++
	cp := *inc
	f.incidents[inc.ID] = &cp
	return nil
}

func (f *fakeStore) GetIncident(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok || !sameTenant(inc.TenantID, tenantID) {
		return nil, db.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (f *fakeStore) ListIncidents(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := model.IncidentListResponse{Items: []model.Incident{}}
	for _, inc := range f.incidents {
		if sameTenant(inc.TenantID, q.TenantID) {
			res.Items = append(res.Items, *inc)
		}
	}
	res.TotalCount = len(res.Items)
	return res, nil
}

func (f *fakeStore) InsertIncidentComment(ctx context.Context, c model.IncidentComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeStore) ListIncidentComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.IncidentComment{}
	for _, c := range f.comments {
		if c.IncidentID == incidentID && sameTenant(c.TenantID, tenantID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SimilarIncidents(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID, limit int) ([]model.SimilarIncident, error) {
	return []model.SimilarIncident{}, nil
}

func (f *fakeStore) onlyIncident() *model.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inc := range f.incidents {
		cp := *inc
		return &cp
	}
	return nil
}

// ---- dead letter / webhooks ----

func (f *fakeStore) InsertFailedLogEvent(ctx context.Context, ev model.FailedLogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, ev)
	return nil
}

func (f *fakeStore) ListActiveWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WebhookRegistration
	for _, h := range f.webhooks {
		if h.IsActive && sameTenant(h.TenantID, tenantID) {
			out = append(out, h)
		}
	}
	return out, nil
}

// ---- collaborators ----

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
	// failAfter - 0보다 크면 이만큼 받은 뒤부터 err 반환
	failAfter int
}

func (p *recordingPublisher) Publish(ctx context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && len(p.msgs) >= p.failAfter {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type notification struct {
	group string
	event string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	err    error
}

func (n *recordingNotifier) NotifyGroup(ctx context.Context, group, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, notification{group: group, event: event})
	return nil
}

type recordingSearch struct {
	mu      sync.Mutex
	docs    []model.SearchDocument
	deleted []uuid.UUID
	err     error
}

func (s *recordingSearch) Upsert(ctx context.Context, doc model.SearchDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *recordingSearch) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *recordingSearch) Search(ctx context.Context, query string, tenantID *uuid.UUID, skip, take int) (model.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SearchResult{TotalCount: len(s.docs), Documents: append([]model.SearchDocument(nil), s.docs...)}, nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (d *recordingDispatcher) DispatchIncidentCreated(ctx context.Context, inc *model.Incident, applicationName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, inc.ID)
}

type stubAnalyzer struct {
	result model.TextAnalysis
	err    error
	calls  int
}

func (a *stubAnalyzer) Analyze(ctx context.Context, messages []string) (model.TextAnalysis, error) {
	a.calls++
	return a.result, a.err
}

func (f *fakeStore) ListWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.WebhookRegistration{}
	for _, h := range f.webhooks {
		if sameTenant(h.TenantID, tenantID) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateWebhook(ctx context.Context, h model.WebhookRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, h)
	return nil
}

func (f *fakeStore) DeleteWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.webhooks {
		if h.ID == id && sameTenant(h.TenantID, tenantID) {
			f.webhooks = append(f.webhooks[:i], f.webhooks[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (f *fakeStore) ToggleWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.webhooks {
		if f.webhooks[i].ID == id && sameTenant(f.webhooks[i].TenantID, tenantID) {
			f.webhooks[i].IsActive = !f.webhooks[i].IsActive
			cp := f.webhooks[i]
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}
