package repository

import (
	"context"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// voteRepository implements the VoteRepository interface
type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository creates a new vote repository instance.
// Pass a transaction handle to run the operations inside it.
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

// CountByTransaction counts votes credited for a transaction
func (r *voteRepository) CountByTransaction(ctx context.Context, transactionID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count, err
}

// SeqsByTransaction returns the ordinals already credited for a transaction
func (r *voteRepository) SeqsByTransaction(ctx context.Context, transactionID uint) ([]int, error) {
	var seqs []int
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("transaction_id = ?", transactionID).
		Order("seq ASC").
		Pluck("seq", &seqs).Error
	return seqs, err
}

// ListByTransaction returns the votes of a transaction ordered by ordinal
func (r *voteRepository) ListByTransaction(ctx context.Context, transactionID uint) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("seq ASC").
		Find(&votes).Error
	return votes, err
}

// CreateMissing inserts votes and silently skips ordinals that already exist.
// It returns the number of rows actually inserted.
func (r *voteRepository) CreateMissing(ctx context.Context, votes []models.Vote) (int64, error) {
	if len(votes) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "transaction_id"},
			{Name: "seq"},
		},
		DoNothing: true,
	}).Create(&votes)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}
