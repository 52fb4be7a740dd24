package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/service"
)

const testSecret = "test-secret"

type stubIngest struct {
	gotKey string
	res    model.IngestResult
	err    error
}

func (s *stubIngest) Ingest(ctx context.Context, apiKey string, req model.IngestRequest) (model.IngestResult, error) {
	s.gotKey = apiKey
	return s.res, s.err
}

type stubIncidents struct {
	lastQuery  model.IncidentListQuery
	lastTenant *uuid.UUID
	resolveErr error
	closeErr   error
}

func (s *stubIncidents) List(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error) {
	s.lastQuery = q
	return model.IncidentListResponse{Items: []model.Incident{}}, nil
}

func (s *stubIncidents) Get(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	s.lastTenant = tenantID
	return nil, service.ErrNotFound
}

func (s *stubIncidents) Search(ctx context.Context, tenantID *uuid.UUID, query string, skip, take int) (model.SearchResult, error) {
	return model.SearchResult{Documents: []model.SearchDocument{}}, nil
}

func (s *stubIncidents) Similar(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, limit int) ([]model.SimilarIncident, error) {
	return []model.SimilarIncident{}, nil
}

func (s *stubIncidents) Resolve(ctx context.Context, tenantID *uuid.UUID, id, userID uuid.UUID) (*model.Incident, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &model.Incident{ID: id, Status: model.StatusResolved, ResolvedBy: &userID}, nil
}

func (s *stubIncidents) Close(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	s.lastTenant = tenantID
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	return &model.Incident{ID: id, Status: model.StatusClosed}, nil
}

func (s *stubIncidents) AddComment(ctx context.Context, tenantID *uuid.UUID, incidentID, authorID uuid.UUID, content string) (*model.IncidentComment, error) {
	return &model.IncidentComment{ID: uuid.New(), IncidentID: incidentID, AuthorID: authorID, Content: content}, nil
}

func (s *stubIncidents) ListComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error) {
	return []model.IncidentComment{}, nil
}

type stubWebhooks struct {
	createErr error
}

func (s *stubWebhooks) List(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	return []model.WebhookRegistration{}, nil
}

func (s *stubWebhooks) Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateWebhookRequest) (*model.WebhookRegistration, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &model.WebhookRegistration{ID: uuid.New(), TenantID: tenantID, URL: req.URL, IsActive: true}, nil
}

func (s *stubWebhooks) Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	return service.ErrNotFound
}

func (s *stubWebhooks) Toggle(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error) {
	return &model.WebhookRegistration{ID: id, TenantID: tenantID}, nil
}

type stubApplications struct {
	createErr error
}

func (s *stubApplications) List(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error) {
	return nil, nil
}

func (s *stubApplications) Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateApplicationRequest) (model.APIKeyResult, error) {
	if s.createErr != nil {
		return model.APIKeyResult{}, s.createErr
	}
	return model.APIKeyResult{ApplicationID: uuid.New(), APIKey: "sip_new"}, nil
}

func (s *stubApplications) RegenerateAPIKey(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (model.APIKeyResult, error) {
	return model.APIKeyResult{ApplicationID: id, APIKey: "sip_rotated"}, nil
}

func (s *stubApplications) Usage(ctx context.Context, tenantID *uuid.UUID) (model.UsageResponse, error) {
	return model.UsageResponse{Month: 202603, Limits: model.LimitsFor(model.PlanFree)}, nil
}

type routerFixture struct {
	router    *gin.Engine
	ingest    *stubIngest
	incidents *stubIncidents
	webhooks  *stubWebhooks
	apps      *stubApplications
}

func newRouterFixture() *routerFixture {
	gin.SetMode(gin.TestMode)
	f := &routerFixture{
		ingest:    &stubIngest{},
		incidents: &stubIncidents{},
		webhooks:  &stubWebhooks{},
		apps:      &stubApplications{},
	}
	f.router = NewRouter(RouterConfig{
		JWTSecret:    testSecret,
		Ingest:       NewIngestHandler(f.ingest),
		Incidents:    NewIncidentHandler(f.incidents),
		Webhooks:     NewWebhookHandler(f.webhooks),
		Applications: NewApplicationHandler(f.apps),
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, user model.AuthUser) map[string]string {
	t.Helper()
	token, err := IssueAccessToken([]byte(testSecret), user, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestIngestHandlerStatusMapping(t *testing.T) {
	body := `{"events":[{"level":"Error","message":"boom"}]}`
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid key", service.ErrInvalidAPIKey, http.StatusUnauthorized},
		{"inactive subscription", service.ErrSubscriptionInactive, http.StatusForbidden},
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"quota", &service.QuotaExceededError{Plan: model.PlanFree, Limit: 10_000, Current: 10_000}, http.StatusTooManyRequests},
		{"unexpected", errors.New("queue down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture()
			f.ingest.err = tc.err
			w := f.do(t, http.MethodPost, "/api/ingest", body, map[string]string{"X-Api-Key": "sip_k"})
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestIngestHandlerRateLimited(t *testing.T) {
	f := newRouterFixture()
	f.ingest.err = &service.RateLimitError{RetryAfter: 60, Limit: 100}

	w := f.do(t, http.MethodPost, "/api/ingest", `{"events":[]}`, map[string]string{"X-Api-Key": "sip_k"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var res model.RateLimitErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Error != "Rate limit exceeded" || res.RetryAfter != 60 {
		t.Fatalf("unexpected body %+v", res)
	}
}

func TestIngestHandlerPartialPublish(t *testing.T) {
	f := newRouterFixture()
	f.ingest.err = &service.PartialPublishError{Accepted: 2, Total: 5, Err: errors.New("queue down")}

	w := f.do(t, http.MethodPost, "/api/ingest", `{"events":[]}`, map[string]string{"X-Api-Key": "sip_k"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var res model.PartialIngestErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Accepted != 2 || res.Total != 5 {
		t.Fatalf("unexpected body %+v", res)
	}
}

func TestIngestHandlerAccepted(t *testing.T) {
	f := newRouterFixture()
	f.ingest.res = model.IngestResult{Accepted: 1, Status: model.IngestStatusQueued, RateLimit: 100, RateLimitRemaining: 99}

	w := f.do(t, http.MethodPost, "/api/ingest", `{"events":[{"level":"Error","message":"boom"}]}`, map[string]string{"X-Api-Key": "sip_k"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if f.ingest.gotKey != "sip_k" {
		t.Fatalf("api key not forwarded: %q", f.ingest.gotKey)
	}
	if w.Header().Get("X-RateLimit-Limit") != "100" || w.Header().Get("X-RateLimit-Remaining") != "99" {
		t.Fatalf("rate limit headers missing: %v", w.Header())
	}
}

func TestIngestHandlerRejectsMalformedJSON(t *testing.T) {
	f := newRouterFixture()
	w := f.do(t, http.MethodPost, "/api/ingest", `{"events":`, map[string]string{"X-Api-Key": "sip_k"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPIRequiresValidToken(t *testing.T) {
	f := newRouterFixture()

	if w := f.do(t, http.MethodGet, "/api/v1/incidents", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}

	other, _ := IssueAccessToken([]byte("other-secret"), model.AuthUser{UserID: uuid.New()}, time.Hour)
	if w := f.do(t, http.MethodGet, "/api/v1/incidents", "", map[string]string{"Authorization": "Bearer " + other}); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}

	expired, _ := IssueAccessToken([]byte(testSecret), model.AuthUser{UserID: uuid.New()}, -time.Minute)
	if w := f.do(t, http.MethodGet, "/api/v1/incidents", "", map[string]string{"Authorization": "Bearer " + expired}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", w.Code)
	}
}

func TestListIncidentsScopesToTokenTenant(t *testing.T) {
	f := newRouterFixture()
	tenant := uuid.New()
	headers := bearer(t, model.AuthUser{UserID: uuid.New(), TenantID: &tenant})

	w := f.do(t, http.MethodGet, "/api/v1/incidents?sortBy=severity&desc=false&take=500", "", headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	q := f.incidents.lastQuery
	if q.TenantID == nil || *q.TenantID != tenant {
		t.Fatalf("tenant not threaded: %v", q.TenantID)
	}
	if q.SortBy != model.SortBySeverity || q.Descending || q.Take != maxPageSize {
		t.Fatalf("unexpected query %+v", q)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/incidents?sortBy=title", "", headers); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown sort field: expected 400, got %d", w.Code)
	}
}

func TestHostTokenHasNoTenant(t *testing.T) {
	f := newRouterFixture()
	headers := bearer(t, model.AuthUser{UserID: uuid.New()})

	w := f.do(t, http.MethodGet, "/api/v1/incidents/"+uuid.NewString(), "", headers)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if f.incidents.lastTenant != nil {
		t.Fatalf("host token should not carry a tenant")
	}
}

func TestResolveIncidentHandler(t *testing.T) {
	f := newRouterFixture()
	tenant := uuid.New()
	user := uuid.New()
	headers := bearer(t, model.AuthUser{UserID: user, TenantID: &tenant})
	id := uuid.New()

	w := f.do(t, http.MethodPost, "/api/v1/incidents/"+id.String()+"/resolve", "", headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		Data model.Incident `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.ResolvedBy == nil || *env.Data.ResolvedBy != user {
		t.Fatalf("resolver should be the token subject")
	}

	f.incidents.resolveErr = model.ErrIncidentTerminal
	if w := f.do(t, http.MethodPost, "/api/v1/incidents/"+id.String()+"/resolve", "", headers); w.Code != http.StatusConflict {
		t.Fatalf("terminal incident: expected 409, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/incidents/not-a-uuid/resolve", "", headers); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", w.Code)
	}
}

func TestCloseIncidentHandler(t *testing.T) {
	f := newRouterFixture()
	tenant := uuid.New()
	headers := bearer(t, model.AuthUser{UserID: uuid.New(), TenantID: &tenant})
	path := "/api/v1/incidents/" + uuid.NewString() + "/close"

	w := f.do(t, http.MethodPost, path, "", headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		Data model.Incident `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Status != model.StatusClosed {
		t.Fatalf("status = %s, want Closed", env.Data.Status)
	}
	if f.incidents.lastTenant == nil || *f.incidents.lastTenant != tenant {
		t.Fatalf("tenant should come from the token")
	}

	f.incidents.closeErr = service.ErrNotFound
	if w := f.do(t, http.MethodPost, path, "", headers); w.Code != http.StatusNotFound {
		t.Fatalf("missing incident: expected 404, got %d", w.Code)
	}
}

func TestCommentHandlers(t *testing.T) {
	f := newRouterFixture()
	headers := bearer(t, model.AuthUser{UserID: uuid.New()})
	path := "/api/v1/incidents/" + uuid.NewString() + "/comments"

	if w := f.do(t, http.MethodPost, path, `{"content":"restarted"}`, headers); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, path, `{}`, headers); w.Code != http.StatusBadRequest {
		t.Fatalf("missing content: expected 400, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, path, "", headers); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestWebhookHandlers(t *testing.T) {
	f := newRouterFixture()
	headers := bearer(t, model.AuthUser{UserID: uuid.New()})

	if w := f.do(t, http.MethodPost, "/api/v1/webhooks", `{"url":"https://example.com/hook"}`, headers); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	f.webhooks.createErr = service.ErrFeatureNotAvailable
	if w := f.do(t, http.MethodPost, "/api/v1/webhooks", `{"url":"https://example.com/hook"}`, headers); w.Code != http.StatusForbidden {
		t.Fatalf("plan without webhooks: expected 403, got %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/v1/webhooks/"+uuid.NewString(), "", headers); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/webhooks/"+uuid.NewString()+"/toggle", "", headers); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestApplicationHandlers(t *testing.T) {
	f := newRouterFixture()
	headers := bearer(t, model.AuthUser{UserID: uuid.New()})

	w := f.do(t, http.MethodPost, "/api/v1/applications", `{"name":"checkout"}`, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var res model.APIKeyResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.APIKey != "sip_new" {
		t.Fatalf("raw key should be returned once: %+v, %v", res, err)
	}

	f.apps.createErr = service.ErrDuplicateApplication
	if w := f.do(t, http.MethodPost, "/api/v1/applications", `{"name":"checkout"}`, headers); w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}
	f.apps.createErr = service.ErrApplicationLimit
	if w := f.do(t, http.MethodPost, "/api/v1/applications", `{"name":"more"}`, headers); w.Code != http.StatusForbidden {
		t.Fatalf("limit: expected 403, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/applications", "", headers)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"data":[]`)) {
		t.Fatalf("empty list should serialize as []: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/api/v1/usage", "", headers); w.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d", w.Code)
	}
}

func TestPing(t *testing.T) {
	f := newRouterFixture()
	w := f.do(t, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("pong")) {
		t.Fatalf("unexpected ping response %d %s", w.Code, w.Body.String())
	}
}
