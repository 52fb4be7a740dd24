package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/model"
)

const maxCommentLength = 4000

// ErrConcurrentUpdate - 다른 요청이 먼저 Incident를 갱신함
var ErrConcurrentUpdate = errors.New("incident was modified concurrently")

type incidentRepo interface {
	ListIncidents(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error)
	GetIncident(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error)
	UpdateIncident(ctx context.Context, inc *model.Incident) error
	GetApplicationName(ctx context.Context, applicationID uuid.UUID) (string, error)
	InsertIncidentComment(ctx context.Context, c model.IncidentComment) error
	ListIncidentComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error)
	SimilarIncidents(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID, limit int) ([]model.SimilarIncident, error)
}

type incidentSearcher interface {
	SearchIndexer
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, tenantID *uuid.UUID, skip, take int) (model.SearchResult, error)
}

// IncidentService - 조회/해결 API 뒤의 비즈니스 로직. 모든 호출은 테넌트 범위로 제한된다.
type IncidentService struct {
	repo     incidentRepo
	search   incidentSearcher
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewIncidentService(repo incidentRepo, search incidentSearcher, notifier Notifier, logger *slog.Logger) *IncidentService {
	return &IncidentService{
		repo:     repo,
		search:   search,
		notifier: notifier,
		logger:   logger.With("component", "incidents"),
		now:      time.Now,
	}
}

func (s *IncidentService) List(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error) {
	return s.repo.ListIncidents(ctx, q)
}

func (s *IncidentService) Get(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	inc, err := s.repo.GetIncident(ctx, tenantID, id)
	return inc, mapNotFound(err)
}

func (s *IncidentService) Search(ctx context.Context, tenantID *uuid.UUID, query string, skip, take int) (model.SearchResult, error) {
	if s.search == nil {
		return model.SearchResult{Documents: []model.SearchDocument{}}, nil
	}
	return s.search.Search(ctx, query, tenantID, skip, take)
}

// Similar - 대상 Incident가 테넌트에 없으면 ErrNotFound
func (s *IncidentService) Similar(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, limit int) ([]model.SimilarIncident, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.repo.SimilarIncidents(ctx, tenantID, id, limit)
}

// Resolve - 사용자 조치로 종료. 이미 종료된 Incident면 model.ErrIncidentTerminal
func (s *IncidentService) Resolve(ctx context.Context, tenantID *uuid.UUID, id, userID uuid.UUID) (*model.Incident, error) {
	inc, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := inc.Resolve(userID, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateIncident(ctx, inc); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	log := s.logger.With("incident_id", inc.ID)
	if s.search != nil {
		appName, err := s.repo.GetApplicationName(ctx, inc.ApplicationID)
		if err != nil {
			appName = "Unknown"
		}
		if err := s.search.Upsert(ctx, model.NewSearchDocument(inc, appName)); err != nil {
			log.Warn("failed to reindex resolved incident", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyGroup(ctx, model.TenantGroup(inc.TenantID), model.EventIncidentResolved, model.NewIncidentNotification(inc)); err != nil {
			log.Warn("failed to notify incident resolution", "error", err)
		}
	}
	log.Info("incident resolved", "resolved_by", userID)
	return inc, nil
}

// Close - 조치 없이 닫는다. 닫힌 Incident는 검색 색인에서 빠진다.
func (s *IncidentService) Close(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error) {
	inc, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := inc.Close(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateIncident(ctx, inc); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	log := s.logger.With("incident_id", inc.ID)
	if s.search != nil {
		if err := s.search.Delete(ctx, inc.ID); err != nil {
			log.Warn("failed to remove closed incident from index", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyGroup(ctx, model.TenantGroup(inc.TenantID), model.EventIncidentClosed, model.NewIncidentNotification(inc)); err != nil {
			log.Warn("failed to notify incident close", "error", err)
		}
	}
	log.Info("incident closed")
	return inc, nil
}

func (s *IncidentService) AddComment(ctx context.Context, tenantID *uuid.UUID, incidentID, authorID uuid.UUID, content string) (*model.IncidentComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalidInput("content is required")
	}
	if len([]rune(content)) > maxCommentLength {
		return nil, invalidInput("content exceeds %d characters", maxCommentLength)
	}
	if _, err := s.Get(ctx, tenantID, incidentID); err != nil {
		return nil, err
	}

	c := model.IncidentComment{
		ID:         uuid.New(),
		IncidentID: incidentID,
		TenantID:   tenantID,
		AuthorID:   authorID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.InsertIncidentComment(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *IncidentService) ListComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error) {
	if _, err := s.Get(ctx, tenantID, incidentID); err != nil {
		return nil, err
	}
	return s.repo.ListIncidentComments(ctx, tenantID, incidentID)
}
