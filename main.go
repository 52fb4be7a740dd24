package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kube-rca/ingest/internal/anomaly"
	"github.com/kube-rca/ingest/internal/blob"
	"github.com/kube-rca/ingest/internal/client"
	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/db"
	"github.com/kube-rca/ingest/internal/handler"
	"github.com/kube-rca/ingest/internal/logging"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/queue"
	"github.com/kube-rca/ingest/internal/ratelimit"
	"github.com/kube-rca/ingest/internal/realtime"
	"github.com/kube-rca/ingest/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

// @title Log Ingestion API
// @version 1.0
// @description Log ingestion, anomaly detection and incident management API.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env는 있으면 읽고 없으면 무시
	_ = godotenv.Load()

	mode := pflag.String("mode", "all", "all | api | worker | sweeper")
	configFile := pflag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config overlay")
	pflag.Parse()

	cfg := config.Load()
	if *configFile != "" {
		if err := config.LoadFile(*configFile, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *mode, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg config.Config, logger *slog.Logger) error {
	runAPI := mode == "all" || mode == "api"
	runWorker := mode == "all" || mode == "worker"
	runSweeper := mode == "all" || mode == "sweeper"
	if !runAPI && !runWorker && !runSweeper {
		return fmt.Errorf("unknown mode %q", mode)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := &db.Postgres{Pool: pool}
	if err := store.EnsureSchema(ctx, cfg.AI.EmbeddingDims); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 검색 색인 (임베딩은 AI 키가 있을 때만)
	var embedder db.Embedder
	if cfg.AI.APIKey != "" {
		ec, err := client.NewEmbeddingClient(ctx, cfg.AI)
		if err != nil {
			logger.Warn("embedding client disabled", "error", err)
		} else {
			embedder = ec
		}
	}
	search := db.NewSearchIndex(store, embedder)
	hub := realtime.NewHub(64)

	publisher, consumer, closeQueue, err := buildQueue(cfg, service.NewDeadLetterRecorder(store, logger), logger)
	if err != nil {
		return err
	}
	defer closeQueue()
	if mode == "api" && cfg.Queue.Driver != "kafka" {
		logger.Warn("memory queue in api-only mode: events are queued but no worker consumes them")
	}

	errCh := make(chan error, 3)
	running := 0

	if runWorker {
		proc := service.NewProcessor(store, service.ProcessorConfig{
			Detector:       anomaly.NewDetector(cfg.Anomaly),
			Analyzer:       buildAnalyzer(ctx, cfg.AI, logger),
			Search:         search,
			Notifier:       hub,
			Webhooks:       service.NewWebhookDispatcher(store, cfg.Webhook, logger),
			RecentMessages: cfg.AI.EnrichmentMessages,
		}, logger)
		running++
		go func() { errCh <- consumer.Run(ctx, proc.Handle) }()
		logger.Info("worker started", "queue", cfg.Queue.Driver)
	}

	if runSweeper {
		blobs, err := blob.NewFSStore(cfg.Sweeper.ArchiveDir)
		if err != nil {
			return err
		}
		sweeper, err := service.NewSweeper(store, blobs, cfg.Sweeper, logger)
		if err != nil {
			return err
		}
		running++
		go func() { errCh <- sweeper.Run(ctx, cfg.Sweeper.Interval) }()
		logger.Info("sweeper started", "interval", cfg.Sweeper.Interval)
	}

	if runAPI {
		limiter, closeLimiter, err := buildLimiter(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeLimiter()

		router := handler.NewRouter(handler.RouterConfig{
			JWTSecret:          cfg.Auth.JWTSecret,
			CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
			Logger:             logger,
			Ingest:             handler.NewIngestHandler(service.NewIngestionService(store, limiter, publisher, logger)),
			Incidents:          handler.NewIncidentHandler(service.NewIncidentService(store, search, hub, logger)),
			Webhooks:           handler.NewWebhookHandler(service.NewWebhookService(store)),
			Applications:       handler.NewApplicationHandler(service.NewApplicationService(store)),
			Realtime:           handler.NewRealtimeHandler(hub),
		})
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		running++
		go func() { errCh <- serve(ctx, ":"+cfg.Server.Port, router, logger) }()
	} else if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		running++
		go func() { errCh <- serve(ctx, cfg.Server.MetricsAddr, mux, logger) }()
	}

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type queueConsumer interface {
	Run(ctx context.Context, h queue.Handler) error
}

func buildQueue(cfg config.Config, sink queue.DeadLetterSink, logger *slog.Logger) (queue.Publisher, queueConsumer, func(), error) {
	policy := queue.RetryPolicy{MaxDeliveries: cfg.Queue.MaxDeliveries, BaseDelay: cfg.Queue.BaseDelay}

	if cfg.Queue.Driver != "kafka" {
		q := queue.NewMemoryQueue(queue.MemoryConfig{Partitions: cfg.Queue.Partitions, BufferSize: cfg.Queue.BufferSize}, policy, sink, logger)
		return q, q, func() { _ = q.Close() }, nil
	}

	kcfg := queue.KafkaConfig{
		Brokers:  cfg.Queue.KafkaBrokers,
		Topic:    cfg.Queue.KafkaTopic,
		Group:    cfg.Queue.KafkaGroup,
		ClientID: "log-ingest",
	}
	pub, err := queue.NewKafkaPublisher(kcfg)
	if err != nil {
		return nil, nil, nil, err
	}
	con, err := queue.NewKafkaConsumer(kcfg, policy, sink, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, nil, err
	}
	return pub, con, func() { _ = pub.Close(); _ = con.Close() }, nil
}

// buildLimiter - Valkey 주소가 없으면 프로세스 메모리 카운터
func buildLimiter(ctx context.Context, cfg config.Config) (*ratelimit.Limiter, func(), error) {
	rlCfg := ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	if cfg.Valkey.Addr == "" {
		return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), rlCfg), func() {}, nil
	}
	vs, err := ratelimit.NewValkeyStore(ctx, ratelimit.ValkeyConfig{
		Addr:     cfg.Valkey.Addr,
		Username: cfg.Valkey.Username,
		Password: cfg.Valkey.Password,
		DB:       cfg.Valkey.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewLimiter(vs, rlCfg), func() { _ = vs.Close() }, nil
}

// buildAnalyzer - 외부 분석 서비스 우선, 없으면 GenAI, 둘 다 없으면 nil
func buildAnalyzer(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) service.Analyzer {
	if ac := client.NewAnalyticsClient(cfg); ac.IsConfigured() {
		return ac
	}
	if cfg.APIKey == "" {
		logger.Info("text analytics disabled")
		return nil
	}
	ga, err := client.NewGenAIAnalyzer(ctx, cfg)
	if err != nil {
		logger.Warn("genai analyzer disabled", "error", err)
		return nil
	}
	return ga
}

func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
