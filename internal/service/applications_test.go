package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

func TestCreateApplication(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	svc := NewApplicationService(store)

	res, err := svc.Create(context.Background(), &tenant, model.CreateApplicationRequest{Name: " checkout "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	app, err := store.GetApplicationByKeyHash(context.Background(), HashAPIKey(res.APIKey))
	if err != nil || app.ID != res.ApplicationID || app.Name != "checkout" {
		t.Fatalf("stored application does not match returned key: %+v, %v", app, err)
	}

	if _, err := svc.Create(context.Background(), &tenant, model.CreateApplicationRequest{Name: "checkout"}); !errors.Is(err, ErrDuplicateApplication) {
		t.Fatalf("expected ErrDuplicateApplication, got %v", err)
	}
	if _, err := svc.Create(context.Background(), &tenant, model.CreateApplicationRequest{Name: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateApplicationRespectsPlanLimit(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	for _, name := range []string{"a", "b", "c"} {
		store.addApp(&tenant, name, "sip_"+name, true)
	}
	svc := NewApplicationService(store)

	if _, err := svc.Create(context.Background(), &tenant, model.CreateApplicationRequest{Name: "d"}); !errors.Is(err, ErrApplicationLimit) {
		t.Fatalf("free plan allows 3 applications, got %v", err)
	}

	store.setPlan(tenant, model.PlanPro, model.SubscriptionActive)
	if _, err := svc.Create(context.Background(), &tenant, model.CreateApplicationRequest{Name: "d"}); err != nil {
		t.Fatalf("pro plan should allow a fourth application: %v", err)
	}
}

func TestRegenerateAPIKey(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	app := store.addApp(&tenant, "checkout", "sip_old", true)
	svc := NewApplicationService(store)

	res, err := svc.RegenerateAPIKey(context.Background(), &tenant, app.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if _, err := store.GetApplicationByKeyHash(context.Background(), HashAPIKey("sip_old")); err == nil {
		t.Fatalf("old key should stop working")
	}
	if _, err := store.GetApplicationByKeyHash(context.Background(), HashAPIKey(res.APIKey)); err != nil {
		t.Fatalf("new key should resolve: %v", err)
	}

	other := uuid.New()
	if _, err := svc.RegenerateAPIKey(context.Background(), &other, app.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another tenant, got %v", err)
	}
}

func TestUsage(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	store.setPlan(tenant, model.PlanPro, model.SubscriptionActive)
	_ = store.IncrementUsage(context.Background(), &tenant, 202603, 42, 3)

	svc := NewApplicationService(store)
	svc.now = func() time.Time { return time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC) }

	u, err := svc.Usage(context.Background(), &tenant)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.Month != 202603 || u.LogsIngested != 42 || u.AICallsUsed != 3 || u.Limits.Plan != model.PlanPro {
		t.Fatalf("unexpected usage %+v", u)
	}
}

func TestWebhookService(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	svc := NewWebhookService(store)
	req := model.CreateWebhookRequest{URL: "https://hooks.example.com/incidents"}

	if _, err := svc.Create(context.Background(), &tenant, req); !errors.Is(err, ErrFeatureNotAvailable) {
		t.Fatalf("free plan: expected ErrFeatureNotAvailable, got %v", err)
	}

	store.setPlan(tenant, model.PlanPro, model.SubscriptionActive)
	if _, err := svc.Create(context.Background(), &tenant, model.CreateWebhookRequest{URL: "ftp://x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	hook, err := svc.Create(context.Background(), &tenant, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !hook.IsActive {
		t.Fatalf("new webhooks start active")
	}

	toggled, err := svc.Toggle(context.Background(), &tenant, hook.ID)
	if err != nil || toggled.IsActive {
		t.Fatalf("toggle = %+v, %v", toggled, err)
	}
	if err := svc.Delete(context.Background(), &tenant, hook.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), &tenant, hook.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
