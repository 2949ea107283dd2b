package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Create appends a delivery to the audit log
func (r *webhookEventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	if event.Outcome == "" {
		event.Outcome = models.WebhookOutcomeReceived
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// MarkProcessed stores the processing outcome and an optional error for a delivery
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, outcome models.WebhookOutcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"outcome":          string(outcome),
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// FindSettledByHash returns an earlier delivery of the same payload that needs no
// reprocessing, or nil when there is none.
func (r *webhookEventRepository) FindSettledByHash(ctx context.Context, payloadHash string, excludeID uint) (*models.WebhookEvent, error) {
	settled := []string{
		string(models.WebhookOutcomeApplied),
		string(models.WebhookOutcomeAlreadyFinal),
		string(models.WebhookOutcomeLostRace),
	}
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("payload_hash = ? AND id <> ? AND outcome IN ?", payloadHash, excludeID, settled).
		Order("id ASC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ListByReference returns every delivery recorded for a transaction reference
func (r *webhookEventRepository) ListByReference(ctx context.Context, reference string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).Where("reference = ?", reference).Order("id ASC").Find(&events).Error
	return events, err
}
