package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kube-rca/ingest/internal/anomaly"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Queue     QueueConfig     `yaml:"queue"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AI        AIConfig        `yaml:"ai"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Anomaly   anomaly.Config  `yaml:"anomaly"`
}

type ServerConfig struct {
	Port               string   `yaml:"port"`
	MetricsAddr        string   `yaml:"metrics_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"sslmode"`
	MaxConns    int32  `yaml:"max_conns"`
}

// QueueConfig - Driver는 memory 또는 kafka
type QueueConfig struct {
	Driver        string        `yaml:"driver"`
	Partitions    int           `yaml:"partitions"`
	BufferSize    int           `yaml:"buffer_size"`
	KafkaBrokers  []string      `yaml:"kafka_brokers"`
	KafkaTopic    string        `yaml:"kafka_topic"`
	KafkaGroup    string        `yaml:"kafka_group"`
	MaxDeliveries int           `yaml:"max_deliveries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
}

// ValkeyConfig - Addr가 비어 있으면 rate limit 카운터를 메모리에 둔다
type ValkeyConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type AIConfig struct {
	APIKey             string `yaml:"api_key"`
	AnalysisModel      string `yaml:"analysis_model"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDims      int    `yaml:"embedding_dims"`
	EnrichmentMessages int    `yaml:"enrichment_messages"`
	AnalyticsURL       string `yaml:"analytics_url"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type WebhookConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SweeperConfig struct {
	Interval         time.Duration `yaml:"interval"`
	BatchSize        int           `yaml:"batch_size"`
	ArchiveAfterDays int           `yaml:"archive_after_days"`
	ArchiveDir       string        `yaml:"archive_dir"`
	ArchiveContainer string        `yaml:"archive_container"`
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:               getenv("PORT", "8080"),
			MetricsAddr:        os.Getenv("METRICS_ADDR"),
			CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level: getenv("LOG_LEVEL", "info"),
			JSON:  getbool("LOG_JSON", true),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
			MaxConns:    int32(getint("PG_MAX_CONNS", 0)),
		},
		Queue: QueueConfig{
			Driver:        getenv("QUEUE_DRIVER", "memory"),
			Partitions:    getint("QUEUE_PARTITIONS", 4),
			BufferSize:    getint("QUEUE_BUFFER_SIZE", 1024),
			KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:    getenv("KAFKA_TOPIC", "log-events"),
			KafkaGroup:    getenv("KAFKA_GROUP", "incident-processor"),
			MaxDeliveries: getint("QUEUE_MAX_DELIVERIES", 10),
			BaseDelay:     getduration("QUEUE_BASE_DELAY", 2*time.Second),
		},
		Valkey: ValkeyConfig{
			Addr:     os.Getenv("VALKEY_ADDR"),
			Username: os.Getenv("VALKEY_USERNAME"),
			Password: os.Getenv("VALKEY_PASSWORD"),
			DB:       getint("VALKEY_DB", 0),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getint("RATE_LIMIT_MAX", 1000),
			Window:      getduration("RATE_LIMIT_WINDOW", 60*time.Second),
		},
		AI: AIConfig{
			APIKey:             os.Getenv("AI_API_KEY"),
			AnalysisModel:      getenv("AI_ANALYSIS_MODEL", "gemini-2.0-flash"),
			EmbeddingModel:     getenv("AI_EMBEDDING_MODEL", "text-embedding-004"),
			EmbeddingDims:      getint("AI_EMBEDDING_DIMS", 768),
			EnrichmentMessages: getint("AI_ENRICHMENT_MESSAGES", 5),
			AnalyticsURL:       os.Getenv("ANALYTICS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Webhook: WebhookConfig{
			MaxAttempts: getint("WEBHOOK_MAX_ATTEMPTS", 3),
			BaseDelay:   getduration("WEBHOOK_BASE_DELAY", 5*time.Second),
			Timeout:     getduration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Sweeper: SweeperConfig{
			Interval:         getduration("SWEEP_INTERVAL", time.Hour),
			BatchSize:        getint("SWEEP_BATCH_SIZE", 1000),
			ArchiveAfterDays: getint("ARCHIVE_AFTER_DAYS", 30),
			ArchiveDir:       getenv("ARCHIVE_DIR", "./data/blobs"),
			ArchiveContainer: getenv("ARCHIVE_CONTAINER", "archived-logs"),
		},
		Anomaly: anomaly.DefaultConfig,
	}
}

// LoadFile - YAML 파일의 값으로 덮어쓴다. 파일에 없는 항목은 기존 값 유지.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getint(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getbool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getduration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
