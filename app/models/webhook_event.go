package models

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// column widths of webhook_events
const (
	webhookProviderWidth  = 20
	webhookReferenceWidth = 64
	webhookExternalWidth  = 191
	webhookStatusWidth    = 64
)

// WebhookOutcome is the processing result recorded for a callback delivery.
type WebhookOutcome string

const (
	WebhookOutcomeReceived         WebhookOutcome = "received"
	WebhookOutcomeApplied          WebhookOutcome = "applied"
	WebhookOutcomeAlreadyFinal     WebhookOutcome = "already_final"
	WebhookOutcomeLostRace         WebhookOutcome = "lost_race"
	WebhookOutcomeUnknownReference WebhookOutcome = "unknown_reference"
	WebhookOutcomeUnparsable       WebhookOutcome = "unparsable"
	WebhookOutcomeIgnored          WebhookOutcome = "ignored"
	WebhookOutcomeInvalidSignature WebhookOutcome = "invalid_signature"
	WebhookOutcomeDuplicate        WebhookOutcome = "duplicate"
	WebhookOutcomeError            WebhookOutcome = "error"
)

// IsSettled reports whether a delivery with this outcome needs no reprocessing
// when the same payload arrives again.
func (o WebhookOutcome) IsSettled() bool {
	switch o {
	case WebhookOutcomeApplied, WebhookOutcomeAlreadyFinal, WebhookOutcomeLostRace:
		return true
	default:
		return false
	}
}

// WebhookEvent is the append-only audit record of one inbound payment callback.
type WebhookEvent struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Provider          string         `gorm:"type:varchar(20);not null;index" json:"provider"`
	Reference         string         `gorm:"type:varchar(64);not null;default:'';index" json:"reference"`
	ExternalReference string         `gorm:"type:varchar(191);not null;default:''" json:"external_reference"`
	ReportedStatus    string         `gorm:"type:varchar(64);not null;default:''" json:"reported_status"`
	PayloadJSON       string         `gorm:"size:16777215;not null" json:"payload_json"`
	PayloadHash       string         `gorm:"type:varchar(64);not null;index" json:"payload_hash"`
	SignatureValid    bool           `gorm:"default:false" json:"signature_valid"`
	Outcome           WebhookOutcome `gorm:"type:varchar(32);not null;default:'received';index" json:"outcome"`
	ProcessingError   string         `gorm:"type:text" json:"processing_error"`
	ProcessedAt       *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

// BeforeCreate cuts the extracted fields to their columns so an oversized
// callback is still recorded.
func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	e.Provider = clip(e.Provider, webhookProviderWidth)
	e.Reference = clip(e.Reference, webhookReferenceWidth)
	e.ExternalReference = clip(e.ExternalReference, webhookExternalWidth)
	e.ReportedStatus = clip(e.ReportedStatus, webhookStatusWidth)
	return nil
}

// clip shortens s to at most n characters.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
