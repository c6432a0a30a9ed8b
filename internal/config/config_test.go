package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080",
		"DB_USER": "root", "DB_HOST": "127.0.0.1", "DB_PORT": "3306", "DB_NAME": "kai",
		"JWT_SECRET": "s", "ACCESS_TOKEN_TTL_MIN": "15", "REFRESH_TOKEN_TTL_DAYS": "7", "BCRYPT_COST": "4",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 5, cfg.BookingCodeAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.RabbitURL)
	assert.True(t, cfg.EventsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("BOOKING_CODE_ATTEMPTS", "9")
	t.Setenv("EVENTS_ENABLED", "off")
	t.Setenv("RABBITMQ_URL", "amqp://primary/")
	t.Setenv("AMQP_URL", "amqp://secondary/")

	cfg := Load()
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, 9, cfg.BookingCodeAttempts)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, "amqp://primary/", cfg.RabbitURL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_PREFIX", "kai")
	t.Setenv("CACHE_METHODS", "get, head,,")
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, "kai:schedules:gen", cfg.GenerationKey)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)

	t.Setenv("RATE_LIMIT_BURST", "50")
	assert.Equal(t, 50, LoadRateLimitConfig().Capacity)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "r1")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_TLS", "1")
	cfg := LoadRedisConfig()
	assert.Equal(t, "r1:6379", cfg.Addr)
	assert.True(t, cfg.TLS)
}
