package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
)

func TestConfigFromEnv(t *testing.T) {
	env.Env = map[string]string{
		"RECONCILE_INTERVAL_SECONDS": "30",
		"RECONCILE_GRACE_SECONDS":    "120",
		"RECONCILE_BATCH_SIZE":       "50",
		"RECONCILE_CONCURRENCY":      "8",
		"RECONCILE_QPS":              "2.5",
	}
	t.Cleanup(func() { env.Env = nil })

	cfg := ConfigFromEnv()
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Grace)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2.5, cfg.QPS)
}

func TestConfigFromEnv_IgnoresInvalidValues(t *testing.T) {
	env.Env = map[string]string{
		"RECONCILE_INTERVAL_SECONDS": "soon",
		"RECONCILE_BATCH_SIZE":       "-1",
		"RECONCILE_QPS":              "0",
	}
	t.Cleanup(func() { env.Env = nil })

	assert.Equal(t, DefaultConfig(), ConfigFromEnv())
}
