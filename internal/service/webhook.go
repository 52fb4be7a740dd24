package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/model"
)

// webhookRepo - DB 인터페이스
type webhookRepo interface {
	ListWebhooks(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error)
	CreateWebhook(ctx context.Context, h model.WebhookRegistration) error
	DeleteWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error
	ToggleWebhook(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error)
	GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error)
}

// WebhookService - 웹훅 등록 비즈니스 로직
type WebhookService struct {
	db  webhookRepo
	now func() time.Time
}

func NewWebhookService(db webhookRepo) *WebhookService {
	return &WebhookService{db: db, now: time.Now}
}

func (s *WebhookService) List(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error) {
	return s.db.ListWebhooks(ctx, tenantID)
}

// Create - 웹훅 기능이 있는 요금제에서만 등록 가능
func (s *WebhookService) Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateWebhookRequest) (*model.WebhookRegistration, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalidInput("url must be an absolute http(s) URL")
	}

	limits, err := s.db.GetLimits(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !limits.WebhooksEnabled {
		return nil, ErrFeatureNotAvailable
	}

	hook := model.WebhookRegistration{
		ID:           uuid.New(),
		TenantID:     tenantID,
		URL:          u.String(),
		Secret:       req.Secret,
		IsActive:     true,
		BodyTemplate: req.BodyTemplate,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.CreateWebhook(ctx, hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

func (s *WebhookService) Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error {
	return mapNotFound(s.db.DeleteWebhook(ctx, tenantID, id))
}

func (s *WebhookService) Toggle(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error) {
	hook, err := s.db.ToggleWebhook(ctx, tenantID, id)
	return hook, mapNotFound(err)
}

func mapNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
