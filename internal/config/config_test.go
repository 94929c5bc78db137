package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATA_PATH", "RECORD_BATCH_SIZE", "CONSUMER_TOPICS", "ROUTE_MATCH_TOLERANCE", "SENTRY_DSN", "DEFER_ROUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, "./data", cfg.DataPath)
	require.Equal(t, 10000, cfg.RecordBatchSize)
	require.Equal(t, 100, cfg.WorkoutBatchSize)
	require.Equal(t, 100, cfg.ClinicalBatchSize)
	require.Equal(t, 5*time.Minute, cfg.RouteMatchTolerance)
	require.Equal(t, []string{"import_events"}, cfg.ConsumerTopics)
	require.Empty(t, cfg.SentryDSN)
	require.False(t, cfg.DeferRoutes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_PATH", "/srv/health")
	t.Setenv("RECORD_BATCH_SIZE", "2500")
	t.Setenv("WORKOUT_BATCH_SIZE", "-4")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, ,broker-2:9092 ")
	t.Setenv("ROUTE_MATCH_TOLERANCE", "90s")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	t.Setenv("DEFER_ROUTES", "true")
	t.Setenv("SENTRY_DSN", "https://key@example.invalid/1")

	cfg := Load()
	require.Equal(t, "/srv/health", cfg.DataPath)
	require.Equal(t, 2500, cfg.RecordBatchSize)
	require.Equal(t, 100, cfg.WorkoutBatchSize)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 90*time.Second, cfg.RouteMatchTolerance)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.True(t, cfg.DeferRoutes)
	require.Equal(t, "https://key@example.invalid/1", cfg.SentryDSN)
}
