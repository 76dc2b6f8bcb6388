package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("POLLWORKER_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_TTL", "not-a-duration")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 8*time.Hour, cfg.JWTTTL)
	assert.Empty(t, cfg.Database.URL)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.Mail.QueueSize)
	assert.InDelta(t, 5.0, cfg.RateLimit.PerSecond, 0.0001)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("POLLWORKER_ADDR", ":9090")
	t.Setenv("APP_BASE_URL", "https://pollworkers.warren-ct.gov/")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("MAIL_QUEUE_SIZE", "7")
	t.Setenv("ADMIN_EMAIL", "admin@warren-ct.gov")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://pollworkers.warren-ct.gov", cfg.BaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Mail.QueueSize)
	assert.Equal(t, "admin@warren-ct.gov", cfg.Admin.Email)
}
