package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultSimilar  = 5
)

type incidentService interface {
	List(ctx context.Context, q model.IncidentListQuery) (model.IncidentListResponse, error)
	Get(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error)
	Search(ctx context.Context, tenantID *uuid.UUID, query string, skip, take int) (model.SearchResult, error)
	Similar(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID, limit int) ([]model.SimilarIncident, error)
	Resolve(ctx context.Context, tenantID *uuid.UUID, id, userID uuid.UUID) (*model.Incident, error)
	Close(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.Incident, error)
	AddComment(ctx context.Context, tenantID *uuid.UUID, incidentID, authorID uuid.UUID, content string) (*model.IncidentComment, error)
	ListComments(ctx context.Context, tenantID *uuid.UUID, incidentID uuid.UUID) ([]model.IncidentComment, error)
}

type IncidentHandler struct {
	svc incidentService
}

func NewIncidentHandler(svc incidentService) *IncidentHandler {
	return &IncidentHandler{svc: svc}
}

// ListIncidents godoc
// @Summary List incidents
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param applicationId query string false "Application ID"
// @Param status query string false "Open, Acknowledged, InProgress, Resolved, Closed"
// @Param sortBy query string false "lastOccurrence, firstOccurrence, severity, occurrenceCount"
// @Param desc query bool false "Descending order (default true)"
// @Param skip query int false "Offset"
// @Param take query int false "Page size (max 100)"
// @Success 200 {object} model.IncidentListResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents [get]
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	q := model.IncidentListQuery{TenantID: tenantOf(c), Descending: true}

	sortBy, ok := model.ParseIncidentSortField(c.Query("sortBy"))
	if !ok {
		badRequest(c, "invalid sortBy")
		return
	}
	q.SortBy = sortBy

	if raw := c.Query("desc"); raw != "" {
		desc, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid desc")
			return
		}
		q.Descending = desc
	}
	if raw := c.Query("applicationId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid applicationId")
			return
		}
		q.ApplicationID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			badRequest(c, "invalid status")
			return
		}
		q.Status = &status
	}

	skip, take, ok := pagination(c)
	if !ok {
		return
	}
	q.Skip, q.Take = skip, take

	res, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetIncident godoc
// @Summary Get incident detail
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentEnvelope
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id} [get]
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inc, err := h.svc.Get(c.Request.Context(), tenantOf(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.IncidentEnvelope{Status: "success", Data: inc})
}

// SearchIncidents godoc
// @Summary Full-text search over incidents
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search text"
// @Param skip query int false "Offset"
// @Param take query int false "Page size (max 100)"
// @Success 200 {object} model.SearchResult
// @Failure 400,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/search [get]
func (h *IncidentHandler) SearchIncidents(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "q is required")
		return
	}
	skip, take, ok := pagination(c)
	if !ok {
		return
	}
	res, err := h.svc.Search(c.Request.Context(), tenantOf(c), query, skip, take)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SimilarIncidents godoc
// @Summary Incidents with similar embeddings
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param limit query int false "Max results (default 5)"
// @Success 200 {object} model.SimilarIncidentsResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/similar [get]
func (h *IncidentHandler) SimilarIncidents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit := defaultSimilar
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageSize {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	res, err := h.svc.Similar(c.Request.Context(), tenantOf(c), id, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SimilarIncidentsResponse{Status: "success", Data: res})
}

// ResolveIncident godoc
// @Summary Resolve an incident
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentEnvelope
// @Failure 400,404,409,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/resolve [post]
func (h *IncidentHandler) ResolveIncident(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	inc, err := h.svc.Resolve(c.Request.Context(), user.TenantID, id, user.UserID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.IncidentEnvelope{Status: "success", Data: inc})
}

// CloseIncident godoc
// @Summary Close an incident without resolution
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentEnvelope
// @Failure 400,404,409,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/close [post]
func (h *IncidentHandler) CloseIncident(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inc, err := h.svc.Close(c.Request.Context(), tenantOf(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.IncidentEnvelope{Status: "success", Data: inc})
}

// ListComments godoc
// @Summary List incident comments (newest first)
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.CommentListResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/comments [get]
func (h *IncidentHandler) ListComments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	comments, err := h.svc.ListComments(c.Request.Context(), tenantOf(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.CommentListResponse{Status: "success", Data: comments})
}

// AddComment godoc
// @Summary Add a comment to an incident
// @Tags incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param request body model.CreateCommentRequest true "Comment"
// @Success 201 {object} model.CommentEnvelope
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/comments [post]
func (h *IncidentHandler) AddComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	comment, err := h.svc.AddComment(c.Request.Context(), user.TenantID, id, user.UserID, req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.CommentEnvelope{Status: "success", Data: comment})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int, bool) {
	skip, take := 0, defaultPageSize
	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid skip")
			return 0, 0, false
		}
		skip = n
	}
	if raw := c.Query("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "invalid take")
			return 0, 0, false
		}
		take = min(n, maxPageSize)
	}
	return skip, take, true
}
