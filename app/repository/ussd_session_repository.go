package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
)

// ussdSessionRepository implements the USSDSessionRepository interface
type ussdSessionRepository struct {
	db *gorm.DB
}

// NewUSSDSessionRepository creates a new USSD session repository instance
func NewUSSDSessionRepository(db *gorm.DB) USSDSessionRepository {
	return &ussdSessionRepository{db: db}
}

// GetBySessionID loads a dialog by the carrier session id. It returns nil, nil when absent.
func (r *ussdSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.USSDSession, error) {
	var session models.USSDSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Save inserts or fully updates a dialog
func (r *ussdSessionRepository) Save(ctx context.Context, session *models.USSDSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// ExpireIdle marks every live dialog idle since before the cutoff as expired
func (r *ussdSessionRepository) ExpireIdle(ctx context.Context, lastActivityBefore time.Time) (int64, error) {
	terminal := []string{
		string(models.USSDStepCompleted),
		string(models.USSDStepCancelled),
		string(models.USSDStepExpired),
	}
	res := r.db.WithContext(ctx).Model(&models.USSDSession{}).
		Where("current_step NOT IN ? AND last_activity < ?", terminal, lastActivityBefore).
		Update("current_step", string(models.USSDStepExpired))
	return res.RowsAffected, res.Error
}
