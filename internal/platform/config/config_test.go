package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"doi"}, cfg.Lifecycle.RequiredSchemes)
	assert.Equal(t, 30*24*time.Hour, cfg.Lifecycle.GracePeriod)
	assert.Equal(t, "curator.pid-jobs", cfg.Kafka.Topic)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CURATOR_SERVER_ADDR", ":9999")
	t.Setenv("CURATOR_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("CURATOR_LIFECYCLE_REQUIRE_COMMUNITY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Lifecycle.RequireCommunity)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"doi"}, splitList("doi"))
	assert.Equal(t, []string{"doi", "oai"}, splitList(" doi ,oai,"))
	assert.Empty(t, splitList(""))
}
