package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/realtime"
)

// streamRecorder - gin.Context.Stream이 요구하는 CloseNotifier와 동시 읽기를 지원
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	code   int
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: http.Header{}, closed: make(chan bool, 1)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(b)
}

func (r *streamRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestRealtimeStreamDeliversTenantEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(8)
	router := NewRouter(RouterConfig{JWTSecret: testSecret, Realtime: NewRealtimeHandler(hub)})

	tenant := uuid.New()
	headers := bearer(t, model.AuthUser{UserID: uuid.New(), TenantID: &tenant})
	group := model.TenantGroup(&tenant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime", nil).WithContext(ctx)
	req.Header.Set("Authorization", headers["Authorization"])
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, func() bool { return hub.Subscribers(group) == 1 })

	other := uuid.New()
	_ = hub.NotifyGroup(context.Background(), model.TenantGroup(&other), model.EventIncidentCreated, gin.H{"title": "foreign"})
	_ = hub.NotifyGroup(context.Background(), group, model.EventIncidentCreated, gin.H{"title": "disk full"})

	waitFor(t, func() bool { return strings.Contains(rec.String(), "disk full") })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after client disconnect")
	}

	body := rec.String()
	if !strings.Contains(body, "event:"+model.EventIncidentCreated) {
		t.Fatalf("missing event name in stream: %q", body)
	}
	if strings.Contains(body, "foreign") {
		t.Fatalf("events from other tenants must not be streamed")
	}
	if hub.Subscribers(group) != 0 {
		t.Fatalf("subscription should be released")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
