package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// RouterConfig - nil 핸들러의 라우트는 등록하지 않는다
type RouterConfig struct {
	JWTSecret          string
	CORSAllowedOrigins []string
	Logger             *slog.Logger

	Ingest       *IngestHandler
	Incidents    *IncidentHandler
	Webhooks     *WebhookHandler
	Applications *ApplicationHandler
	Realtime     *RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}
	r.Use(CORSMiddleware(cfg.CORSAllowedOrigins, true))

	r.GET("/", Root)
	r.GET("/ping", Ping)
	r.GET("/openapi.json", OpenAPIDoc)

	if cfg.Ingest != nil {
		r.POST("/api/ingest", cfg.Ingest.Ingest)
	}

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.JWTSecret))

	if h := cfg.Incidents; h != nil {
		v1.GET("/incidents", h.ListIncidents)
		v1.GET("/incidents/search", h.SearchIncidents)
		v1.GET("/incidents/:id", h.GetIncident)
		v1.GET("/incidents/:id/similar", h.SimilarIncidents)
		v1.POST("/incidents/:id/resolve", h.ResolveIncident)
		v1.POST("/incidents/:id/close", h.CloseIncident)
		v1.GET("/incidents/:id/comments", h.ListComments)
		v1.POST("/incidents/:id/comments", h.AddComment)
	}
	if h := cfg.Webhooks; h != nil {
		v1.GET("/webhooks", h.ListWebhooks)
		v1.POST("/webhooks", h.CreateWebhook)
		v1.DELETE("/webhooks/:id", h.DeleteWebhook)
		v1.POST("/webhooks/:id/toggle", h.ToggleWebhook)
	}
	if h := cfg.Applications; h != nil {
		v1.GET("/applications", h.ListApplications)
		v1.POST("/applications", h.CreateApplication)
		v1.POST("/applications/:id/regenerate-key", h.RegenerateAPIKey)
		v1.GET("/usage", h.GetUsage)
	}
	if cfg.Realtime != nil {
		v1.GET("/realtime", cfg.Realtime.Stream)
	}
	return r
}
