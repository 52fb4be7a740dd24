package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/service"
)

// writeServiceError - 서비스 에러를 HTTP 상태로 변환
func writeServiceError(c *gin.Context, err error) {
	var rl *service.RateLimitError
	var quota *service.QuotaExceededError
	var partial *service.PartialPublishError

	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfter))
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		c.Header("X-RateLimit-Remaining", "0")
		c.JSON(http.StatusTooManyRequests, model.RateLimitErrorResponse{Error: "Rate limit exceeded", RetryAfter: rl.RetryAfter})
	case errors.As(err, &quota):
		c.JSON(http.StatusTooManyRequests, model.QuotaErrorResponse{
			Error:   "Monthly log quota exceeded",
			Plan:    quota.Plan,
			Limit:   quota.Limit,
			Current: quota.Current,
		})
	case errors.As(err, &partial):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, model.PartialIngestErrorResponse{
			Error:    "Queue unavailable",
			Accepted: partial.Accepted,
			Total:    partial.Total,
		})
	case errors.Is(err, service.ErrInvalidAPIKey):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Status: "error", Error: "invalid api key"})
	case errors.Is(err, service.ErrSubscriptionInactive):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Status: "error", Error: "subscription is not active"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Status: "error", Error: "not found"})
	case errors.Is(err, service.ErrFeatureNotAvailable), errors.Is(err, service.ErrApplicationLimit):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Status: "error", Error: err.Error()})
	case errors.Is(err, service.ErrDuplicateApplication),
		errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, model.ErrIncidentTerminal):
		c.JSON(http.StatusConflict, model.ErrorResponse{Status: "error", Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Status: "error", Error: "server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Error: msg})
}
