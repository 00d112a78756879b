package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for the result store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	LogLevel        slog.Level
	LogFormat       string // "json" or "text"
	ShutdownTimeout time.Duration

	// Store selects the result store backend (memory, postgres, redis).
	Store       string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// RegistryFile is a YAML unit catalog. When empty and no database is
	// configured, the built-in seed registry is used.
	RegistryFile string

	// NotificationCapacity bounds the notification buffer; the oldest
	// notification is evicted on overflow.
	NotificationCapacity int
	// FindingsCapacity bounds the recent-findings list the same way.
	FindingsCapacity int

	// FlagResubmissionAfterReview raises a low severity finding when a unit
	// that an operator already verified or rejected is submitted again.
	FlagResubmissionAfterReview bool

	Insight InsightConfig

	// FeedInterval enables the simulated live feed when non-zero.
	FeedInterval time.Duration
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional notification fan-out producer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// InsightConfig configures the external text-generation collaborator.
type InsightConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	QueueSize int
}

// Enabled reports whether the insight gateway has credentials.
func (c InsightConfig) Enabled() bool { return c.APIKey != "" }

// Enabled reports whether a Kafka producer should be started.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }

// FromEnv builds a Server config from environment variables (after loading an
// optional .env file) so main stays lean.
func FromEnv() Server {
	_ = godotenv.Load()

	cfg := Server{
		Addr:            getEnv("POLLWATCH_ADDR", ":8080"),
		LogLevel:        parseLevel(os.Getenv("LOG_LEVEL")),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		Store:       strings.ToLower(getEnv("RESULT_STORE", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_NOTIFICATIONS_TOPIC", "pollwatch.notifications"),
		},

		RegistryFile: os.Getenv("REGISTRY_FILE"),

		NotificationCapacity: getInt("NOTIFICATION_CAPACITY", 100),
		FindingsCapacity:     getInt("FINDINGS_CAPACITY", 200),

		FlagResubmissionAfterReview: os.Getenv("FLAG_RESUBMISSION_AFTER_REVIEW") == "true",

		Insight: InsightConfig{
			APIKey:    os.Getenv("INSIGHT_API_KEY"),
			BaseURL:   os.Getenv("INSIGHT_BASE_URL"),
			Model:     getEnv("INSIGHT_MODEL", "gpt-4o-mini"),
			Timeout:   getDuration("INSIGHT_TIMEOUT", 8*time.Second),
			QueueSize: getInt("INSIGHT_QUEUE_SIZE", 64),
		},

		FeedInterval: getDuration("FEED_INTERVAL", 0),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
