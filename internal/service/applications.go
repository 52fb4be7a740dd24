package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/model"
)

var (
	ErrDuplicateApplication = errors.New("application name already exists")
	ErrApplicationLimit     = errors.New("application limit reached for current plan")
	ErrNotFound             = errors.New("not found")
)

// applicationRepo - DB 인터페이스
type applicationRepo interface {
	ListApplications(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error)
	CountApplications(ctx context.Context, tenantID *uuid.UUID) (int, error)
	CreateApplication(ctx context.Context, app model.Application) error
	UpdateAPIKeyHash(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, keyHash string) error
	GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error)
	GetMonthlyUsage(ctx context.Context, tenantID *uuid.UUID, month int) (model.MonthlyUsage, error)
}

// ApplicationService - 모니터링 대상 애플리케이션과 API key 관리
type ApplicationService struct {
	db  applicationRepo
	now func() time.Time
}

func NewApplicationService(db applicationRepo) *ApplicationService {
	return &ApplicationService{db: db, now: time.Now}
}

func (s *ApplicationService) List(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error) {
	return s.db.ListApplications(ctx, tenantID)
}

// Create - 애플리케이션을 등록하고 API key 원문을 한 번만 반환
func (s *ApplicationService) Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateApplicationRequest) (model.APIKeyResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.APIKeyResult{}, invalidInput("name is required")
	}

	limits, err := s.db.GetLimits(ctx, tenantID)
	if err != nil {
		return model.APIKeyResult{}, err
	}
	count, err := s.db.CountApplications(ctx, tenantID)
	if err != nil {
		return model.APIKeyResult{}, err
	}
	if count >= limits.MaxApplications {
		return model.APIKeyResult{}, ErrApplicationLimit
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return model.APIKeyResult{}, err
	}
	app := model.Application{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		APIKeyHash: HashAPIKey(key),
		IsActive:   true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return model.APIKeyResult{}, ErrDuplicateApplication
		}
		return model.APIKeyResult{}, err
	}
	return model.APIKeyResult{ApplicationID: app.ID, APIKey: key}, nil
}

func (s *ApplicationService) RegenerateAPIKey(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (model.APIKeyResult, error) {
	key, err := GenerateAPIKey()
	if err != nil {
		return model.APIKeyResult{}, err
	}
	if err := s.db.UpdateAPIKeyHash(ctx, tenantID, id, HashAPIKey(key)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return model.APIKeyResult{}, ErrNotFound
		}
		return model.APIKeyResult{}, err
	}
	return model.APIKeyResult{ApplicationID: id, APIKey: key}, nil
}

// Usage - 이번 달 사용량과 요금제 한도
func (s *ApplicationService) Usage(ctx context.Context, tenantID *uuid.UUID) (model.UsageResponse, error) {
	limits, err := s.db.GetLimits(ctx, tenantID)
	if err != nil {
		return model.UsageResponse{}, err
	}
	month := model.UsageMonth(s.now())
	usage, err := s.db.GetMonthlyUsage(ctx, tenantID, month)
	if err != nil {
		return model.UsageResponse{}, err
	}
	return model.UsageResponse{
		Month:        month,
		LogsIngested: usage.LogsIngested,
		AICallsUsed:  usage.AICallsUsed,
		Limits:       limits,
	}, nil
}
