package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthController reports whether the backing stores answer
type HealthController struct {
	db  *gorm.DB
	rdb redis.Cmdable
}

// NewHealthController creates a health controller. rdb may be nil when Redis is not used.
func NewHealthController(db *gorm.DB, rdb redis.Cmdable) *HealthController {
	return &HealthController{db: db, rdb: rdb}
}

// HandleHealth handles GET /health
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	body := fiber.Map{"status": "ok", "database": "ok", "cache": "disabled"}

	if err := hc.pingDB(ctx); err != nil {
		status = fiber.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}

	// Redis only holds optional state, so it never fails the check
	if hc.rdb != nil {
		if err := hc.rdb.Ping(ctx).Err(); err != nil {
			body["cache"] = "unavailable"
		} else {
			body["cache"] = "ok"
		}
	}

	return c.Status(status).JSON(body)
}

func (hc *HealthController) pingDB(ctx context.Context) error {
	sqlDB, err := hc.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
