package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VoteFox/app/controllers"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ratelimit"
)

// Router installs a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the HTTP handlers delegate to
type Dependencies struct {
	DB        *gorm.DB
	Redis     redis.Cmdable
	Dialogs   controllers.DialogHandler
	Callbacks controllers.CallbackHandler
	USSDLimit ratelimit.Config
	// MetricsUsers guards the monitor and Prometheus endpoints; empty leaves them closed
	MetricsUsers map[string]string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Public carrier and gateway callbacks first, then operational endpoints.
	setup(app, NewHttpRouter(deps), NewOpsRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
