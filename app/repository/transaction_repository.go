package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a new pending transaction
func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// GetByID retrieves a transaction by its ID
func (r *transactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetByReference retrieves a transaction by its client reference
func (r *transactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransitionFromPending moves a pending transaction into a terminal state.
// The update is conditioned on the current status, so of several concurrent
// writers exactly one observes true.
func (r *transactionRepository) TransitionFromPending(ctx context.Context, reference string, to models.TransactionStatus, fields TransitionFields) (bool, error) {
	if !to.IsTerminal() {
		return false, fmt.Errorf("transition target %q is not a terminal status", to)
	}

	updates := map[string]interface{}{
		"status": string(to),
	}
	if fields.ExternalReference != "" {
		updates["external_reference"] = fields.ExternalReference
	}
	if fields.FailureReason != "" {
		updates["failure_reason"] = fields.FailureReason
	}
	if fields.CompletedAt != nil {
		updates["completed_at"] = *fields.CompletedAt
	}

	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, string(models.TransactionStatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetExternalReference stores the provider identifier while the transaction is still pending
func (r *transactionRepository) SetExternalReference(ctx context.Context, reference, externalReference string) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, string(models.TransactionStatusPending)).
		Update("external_reference", externalReference).Error
}

// ListStalePending returns pending transactions created before the given time, oldest first
func (r *transactionRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(models.TransactionStatusPending), createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// ListUnderCredited returns completed transactions that own fewer votes than they paid for
func (r *transactionRepository) ListUnderCredited(ctx context.Context, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ?", string(models.TransactionStatusCompleted)).
		Where("vote_count > (SELECT COUNT(*) FROM votes WHERE votes.transaction_id = transactions.id)").
		Order("id ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
