package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VoteFox/internal/pkg/ussd"
)

const (
	ussdTypeResponse = "Response"
	ussdTypeRelease  = "Release"
	ussdTimeout      = 20 * time.Second
)

// DialogHandler advances a USSD dialog by one carrier request
type DialogHandler interface {
	HandleInput(ctx context.Context, sessionID, phoneNumber, input string) (ussd.Reply, error)
}

// USSDRequest is the carrier gateway callback body
type USSDRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=9,max=20"`
	SessionID   string `json:"session_id" validate:"required,max=128"`
	Input       string `json:"input" validate:"max=182"`
	Sequence    int    `json:"sequence" validate:"gte=0"`
}

// USSDResponse tells the carrier what to show and whether to keep the dialog open
type USSDResponse struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// USSDController serves the carrier USSD callback
type USSDController struct {
	dialogs  DialogHandler
	validate *validator.Validate
}

// NewUSSDController creates a new USSD controller
func NewUSSDController(dialogs DialogHandler) *USSDController {
	return &USSDController{
		dialogs:  dialogs,
		validate: validator.New(),
	}
}

// HandleUSSD handles POST /ussd
func (uc *USSDController) HandleUSSD(c *fiber.Ctx) error {
	var req USSDRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.SessionID = strings.TrimSpace(req.SessionID)

	if err := uc.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		fields := []string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "fields": fields})
	}

	ctx, cancel := context.WithTimeout(context.Background(), ussdTimeout)
	defer cancel()

	reply, err := uc.dialogs.HandleInput(ctx, req.SessionID, req.PhoneNumber, req.Input)
	if err != nil {
		log.Errorf("[USSD] Session %s (seq %d) failed: %v", req.SessionID, req.Sequence, err)
	}

	resp := USSDResponse{Type: ussdTypeResponse, Message: reply.Message}
	if reply.Final {
		resp.Type = ussdTypeRelease
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
