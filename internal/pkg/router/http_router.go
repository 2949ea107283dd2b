package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VoteFox/app/controllers"
	"github.com/ManuelReschke/VoteFox/internal/pkg/constants"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ratelimit"
)

// HttpRouter serves the carrier USSD callback and the payment webhook
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	ussdController := controllers.NewUSSDController(h.deps.Dialogs)
	webhookController := controllers.NewWebhookController(h.deps.Callbacks)
	healthController := controllers.NewHealthController(h.deps.DB, h.deps.Redis)

	app.Post(constants.USSDRoute, ratelimit.New(h.deps.USSDLimit), ussdController.HandleUSSD)
	app.Post(constants.PaymentWebhookRoute, webhookController.HandlePaymentWebhook)
	app.Get(constants.HealthRoute, healthController.HandleHealth)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
