package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("RESULT_STORE", "")
	t.Setenv("NOTIFICATION_CAPACITY", "")
	t.Setenv("INSIGHT_API_KEY", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("FEED_INTERVAL", "")

	cfg := FromEnv()

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 100, cfg.NotificationCapacity)
	assert.Equal(t, 8*time.Second, cfg.Insight.Timeout)
	assert.False(t, cfg.Insight.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Zero(t, cfg.FeedInterval)
	assert.False(t, cfg.FlagResubmissionAfterReview)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RESULT_STORE", "Postgres")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTIFICATION_CAPACITY", "25")
	t.Setenv("INSIGHT_TIMEOUT", "5s")
	t.Setenv("INSIGHT_API_KEY", "sk-test")
	t.Setenv("KAFKA_BROKERS", "localhost:9092, broker2:9092 ,")
	t.Setenv("FEED_INTERVAL", "8s")
	t.Setenv("FLAG_RESUBMISSION_AFTER_REVIEW", "true")

	cfg := FromEnv()

	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 25, cfg.NotificationCapacity)
	assert.Equal(t, 5*time.Second, cfg.Insight.Timeout)
	assert.True(t, cfg.Insight.Enabled())
	assert.Equal(t, []string{"localhost:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 8*time.Second, cfg.FeedInterval)
	assert.True(t, cfg.FlagResubmissionAfterReview)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("NOTIFICATION_CAPACITY", "lots")
	t.Setenv("INSIGHT_TIMEOUT", "soon")

	cfg := FromEnv()

	assert.Equal(t, 100, cfg.NotificationCapacity)
	assert.Equal(t, 8*time.Second, cfg.Insight.Timeout)
}
