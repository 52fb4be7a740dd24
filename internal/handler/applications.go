package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

type applicationService interface {
	List(ctx context.Context, tenantID *uuid.UUID) ([]model.Application, error)
	Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateApplicationRequest) (model.APIKeyResult, error)
	RegenerateAPIKey(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (model.APIKeyResult, error)
	Usage(ctx context.Context, tenantID *uuid.UUID) (model.UsageResponse, error)
}

type ApplicationHandler struct {
	svc applicationService
}

func NewApplicationHandler(svc applicationService) *ApplicationHandler {
	return &ApplicationHandler{svc: svc}
}

// ListApplications godoc
// @Summary List monitored applications
// @Tags applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ApplicationListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/applications [get]
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	apps, err := h.svc.List(c.Request.Context(), tenantOf(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	c.JSON(http.StatusOK, model.ApplicationListResponse{Status: "success", Data: apps})
}

// CreateApplication godoc
// @Summary Register an application
// @Description The raw API key is only returned once.
// @Tags applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreateApplicationRequest true "Application"
// @Success 201 {object} model.APIKeyResult
// @Failure 400,403,409,500 {object} model.ErrorResponse
// @Router /api/v1/applications [post]
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	var req model.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// RegenerateAPIKey godoc
// @Summary Replace an application's API key
// @Tags applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} model.APIKeyResult
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/applications/{id}/regenerate-key [post]
func (h *ApplicationHandler) RegenerateAPIKey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.RegenerateAPIKey(c.Request.Context(), tenantOf(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetUsage godoc
// @Summary Current month usage and plan limits
// @Tags usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UsageResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/usage [get]
func (h *ApplicationHandler) GetUsage(c *gin.Context) {
	res, err := h.svc.Usage(c.Request.Context(), tenantOf(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
