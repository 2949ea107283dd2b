package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
)

// Config tunes the reconciliation passes.
type Config struct {
	Interval     time.Duration
	Grace        time.Duration
	BatchSize    int
	Concurrency  int
	QPS          float64
	QueryTimeout time.Duration
	SessionIdle  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     2 * time.Minute,
		Grace:        5 * time.Minute,
		BatchSize:    100,
		Concurrency:  4,
		QPS:          5,
		QueryTimeout: 10 * time.Second,
		SessionIdle:  models.USSDSessionTTL,
	}
}

// ConfigFromEnv reads the RECONCILE_* settings on top of the defaults
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := env.GetEnvInt("RECONCILE_INTERVAL_SECONDS", 0); v > 0 {
		cfg.Interval = time.Duration(v) * time.Second
	}
	if v := env.GetEnvInt("RECONCILE_GRACE_SECONDS", 0); v > 0 {
		cfg.Grace = time.Duration(v) * time.Second
	}
	if v := env.GetEnvInt("RECONCILE_BATCH_SIZE", 0); v > 0 {
		cfg.BatchSize = v
	}
	if v := env.GetEnvInt("RECONCILE_CONCURRENCY", 0); v > 0 {
		cfg.Concurrency = v
	}
	if raw := strings.TrimSpace(env.GetEnv("RECONCILE_QPS", "")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.QPS = v
		}
	}
	return cfg
}
