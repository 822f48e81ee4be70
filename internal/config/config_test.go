package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SLA_AUTO_ESCALATE_AFTER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Nil(t, cfg.Notification.KafkaBrokers)
	assert.False(t, cfg.Notification.SMTPEnabled())
	assert.Equal(t, "1 day", cfg.SLA.AutoEscalateAfter)
	assert.Equal(t, 5*time.Minute, cfg.SLA.SweepInterval())
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("SLA_POLICY_CACHE_BACKEND", "Redis")
	t.Setenv("SLA_POLICY_CACHE_TTL_SECONDS", "0")
	t.Setenv("SLA_SWEEP_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notification.KafkaBrokers)
	assert.Equal(t, "redis", cfg.SLA.PolicyCacheBackend)
	assert.Zero(t, cfg.SLA.PolicyCacheTTL())
	assert.Equal(t, 300, cfg.SLA.SweepIntervalSeconds)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid REDIS_DB")
}
