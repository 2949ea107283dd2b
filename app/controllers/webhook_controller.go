package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VoteFox/internal/pkg/webhook"
)

const webhookTimeout = 15 * time.Second

// CallbackHandler records and applies one payment callback
type CallbackHandler interface {
	Handle(ctx context.Context, raw []byte, signature string) webhook.Result
}

// WebhookController serves the payment gateway callback
type WebhookController struct {
	callbacks CallbackHandler
}

// NewWebhookController creates a new webhook controller
func NewWebhookController(callbacks CallbackHandler) *WebhookController {
	return &WebhookController{callbacks: callbacks}
}

// HandlePaymentWebhook handles POST /webhooks/payment. The gateway always gets
// 200 so it stops retrying; the outcome lives in the webhook event log.
func (wc *WebhookController) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "X-Payment-Signature", "X-Webhook-Signature", "X-Signature")

	// detached from the request so a dropped connection cannot abort a credit
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	wc.callbacks.Handle(ctx, rawBody, signature)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
