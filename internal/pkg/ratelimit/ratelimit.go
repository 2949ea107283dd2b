// Package ratelimit throttles carrier USSD requests per phone number.
package ratelimit

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/VoteFox/internal/pkg/cache"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
)

// limiterDatabase keeps counters apart from sessions and locks on DB 0
const limiterDatabase = 2

const (
	defaultMax        = 30
	defaultExpiration = time.Minute
)

// Config controls the per phone number limit
type Config struct {
	Max        int
	Expiration time.Duration
	// Storage shares counters between instances; nil keeps them in memory
	Storage fiber.Storage
}

// ConfigFromEnv reads USSD_RATE_LIMIT and USSD_RATE_WINDOW_SECONDS and uses
// Redis storage when the cache answers.
func ConfigFromEnv() Config {
	cfg := Config{
		Max:        env.GetEnvInt("USSD_RATE_LIMIT", defaultMax),
		Expiration: time.Duration(env.GetEnvInt("USSD_RATE_WINDOW_SECONDS", int(defaultExpiration/time.Second))) * time.Second,
	}
	if cache.Available() {
		cfg.Storage = NewRedisStorage()
	} else {
		log.Warn("[RateLimit] Cache unavailable, USSD limits are per instance")
	}
	return cfg
}

// NewRedisStorage builds fiber storage on the same Redis server as the cache
func NewRedisStorage() fiber.Storage {
	// Get Redis client configuration from existing cache setup
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// PhoneKey keys the limiter by the voter's phone number, falling back to the client IP
func PhoneKey(c *fiber.Ctx) string {
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.BodyParser(&body); err == nil {
		if phone := strings.TrimSpace(body.PhoneNumber); phone != "" {
			return "ussd:" + phone
		}
	}
	return "ussd-ip:" + c.IP()
}

// New returns the limiter middleware for the USSD endpoint
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = defaultMax
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = defaultExpiration
	}
	return limiter.New(limiter.Config{
		Max:          cfg.Max,
		Expiration:   cfg.Expiration,
		KeyGenerator: PhoneKey,
		Storage:      cfg.Storage,
		LimitReached: func(c *fiber.Ctx) error {
			// the carrier renders Message, so answer in its format
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"Type":    "Release",
				"Message": "Too many requests. Please try again shortly.",
			})
		},
	})
}
