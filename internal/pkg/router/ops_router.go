package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/VoteFox/internal/pkg/constants"
)

// OpsRouter serves operator endpoints behind basic auth
type OpsRouter struct {
	deps Dependencies
}

func (o OpsRouter) InstallRouter(app *fiber.App) {
	if len(o.deps.MetricsUsers) == 0 {
		return
	}
	auth := basicauth.New(basicauth.Config{
		Users: o.deps.MetricsUsers,
	})

	// Prometheus scrape endpoint, registered before the monitor page
	app.Get(constants.PrometheusMetricsRoute, auth, adaptor.HTTPHandler(promhttp.Handler()))

	// fiber metrics
	app.Get(constants.MetricsRoute, auth, monitor.New(monitor.Config{Title: "VoteFox Metrics"}))
}

func NewOpsRouter(deps Dependencies) *OpsRouter {
	return &OpsRouter{deps: deps}
}
