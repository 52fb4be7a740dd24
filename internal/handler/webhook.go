package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kube-rca/ingest/internal/model"
)

// webhookService - 서비스 인터페이스
type webhookService interface {
	List(ctx context.Context, tenantID *uuid.UUID) ([]model.WebhookRegistration, error)
	Create(ctx context.Context, tenantID *uuid.UUID, req model.CreateWebhookRequest) (*model.WebhookRegistration, error)
	Delete(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) error
	Toggle(ctx context.Context, tenantID *uuid.UUID, id uuid.UUID) (*model.WebhookRegistration, error)
}

// WebhookHandler - 테넌트 웹훅 등록 관리
type WebhookHandler struct {
	svc webhookService
}

func NewWebhookHandler(svc webhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// ListWebhooks godoc
// @Summary List webhook registrations
// @Tags webhooks
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.WebhookListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/webhooks [get]
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	hooks, err := h.svc.List(c.Request.Context(), tenantOf(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookListResponse{Status: "success", Data: hooks})
}

// CreateWebhook godoc
// @Summary Register a webhook
// @Description Requires a plan with webhooks enabled.
// @Tags webhooks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreateWebhookRequest true "Webhook"
// @Success 201 {object} model.WebhookEnvelope
// @Failure 400,403,500 {object} model.ErrorResponse
// @Router /api/v1/webhooks [post]
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req model.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "url is required")
		return
	}
	hook, err := h.svc.Create(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.WebhookEnvelope{Status: "success", Data: hook})
}

// DeleteWebhook godoc
// @Summary Delete a webhook
// @Tags webhooks
// @Security BearerAuth
// @Param id path string true "Webhook ID"
// @Success 204
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/webhooks/{id} [delete]
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), tenantOf(c), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleWebhook godoc
// @Summary Enable or disable a webhook
// @Tags webhooks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Webhook ID"
// @Success 200 {object} model.WebhookEnvelope
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/webhooks/{id}/toggle [post]
func (h *WebhookHandler) ToggleWebhook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	hook, err := h.svc.Toggle(c.Request.Context(), tenantOf(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookEnvelope{Status: "success", Data: hook})
}
