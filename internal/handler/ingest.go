package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/ingest/internal/model"
)

const apiKeyHeader = "X-Api-Key"

type ingestService interface {
	Ingest(ctx context.Context, apiKey string, req model.IngestRequest) (model.IngestResult, error)
}

// IngestHandler - API key 인증 수집 엔드포인트 (JWT 없음)
type IngestHandler struct {
	svc ingestService
}

func NewIngestHandler(svc ingestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest godoc
// @Summary Ingest a batch of log events
// @Description Validates the whole batch, then queues one message per event. Rejected batches queue nothing.
// @Tags ingest
// @Accept json
// @Produce json
// @Param X-Api-Key header string true "Application API key"
// @Param request body model.IngestRequest true "Log events"
// @Success 202 {object} model.IngestResult
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 429 {object} model.RateLimitErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Failure 503 {object} model.PartialIngestErrorResponse
// @Router /api/ingest [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.Ingest(c.Request.Context(), c.GetHeader(apiKeyHeader), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(res.RateLimit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.RateLimitRemaining))
	c.JSON(http.StatusAccepted, res)
}
