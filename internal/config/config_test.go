package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv().normalized()

	assert.Equal(t, defaultAddr, cfg.Server.Addr)
	assert.Equal(t, defaultLogLevel, cfg.Log.Level)
	assert.Equal(t, defaultPollInterval, cfg.Scheduler.PollInterval)
	assert.Equal(t, defaultMaxConcurrent, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, defaultTimeout, cfg.Scheduler.DefaultTimeout)
	assert.Equal(t, defaultShutdownGrace, cfg.ShutdownGrace)
	assert.False(t, cfg.Notification.Webhook.Enabled)
	assert.False(t, cfg.Notification.Telegram.Enabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TASKDECK_ADDR", "127.0.0.1:9999")
	t.Setenv("TASKDECK_LOG_LEVEL", "debug")
	t.Setenv("TASKDECK_POLL_INTERVAL", "250ms")
	t.Setenv("TASKDECK_MAX_CONCURRENT", "8")
	t.Setenv("TASKDECK_WEBHOOK_ENABLED", "true")
	t.Setenv("TASKDECK_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("TASKDECK_TELEGRAM_CHAT_ID", "-1001234567890")

	cfg := FromEnv().normalized()
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrent)
	assert.True(t, cfg.Notification.Webhook.Enabled)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Notification.Webhook.URL)
	assert.Equal(t, int64(-1001234567890), cfg.Notification.Telegram.ChatID)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TASKDECK_POLL_INTERVAL", "soon")
	t.Setenv("TASKDECK_MAX_CONCURRENT", "many")

	cfg := FromEnv().normalized()
	assert.Equal(t, defaultPollInterval, cfg.Scheduler.PollInterval)
	assert.Equal(t, defaultMaxConcurrent, cfg.Scheduler.MaxConcurrent)
}

func TestNormalizedClampsInvalid(t *testing.T) {
	cfg := &Config{
		Scheduler: SchedulerConfig{
			PollInterval:      -time.Second,
			MaxConcurrent:     0,
			DefaultTimeout:    0,
			DefaultMaxRetries: -1,
		},
	}
	cfg.normalized()
	assert.Equal(t, defaultPollInterval, cfg.Scheduler.PollInterval)
	assert.Equal(t, defaultMaxConcurrent, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, defaultTimeout, cfg.Scheduler.DefaultTimeout)
	assert.Equal(t, defaultMaxRetries, cfg.Scheduler.DefaultMaxRetries)
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TD_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("TD_TEST_BOOL", false))
	t.Setenv("TD_TEST_BOOL", "0")
	assert.False(t, getEnvBool("TD_TEST_BOOL", true))
	assert.True(t, getEnvBool("TD_TEST_BOOL_UNSET", true))
}
