package repository

import (
	"context"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
)

// catalogRepository implements the CatalogRepository interface
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository instance
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// ListActiveEvents returns events currently open for voting
func (r *catalogRepository) ListActiveEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&events).Error
	return events, err
}

// GetEvent retrieves an event by its ID
func (r *catalogRepository) GetEvent(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListCategories returns the categories of an event
func (r *catalogRepository) ListCategories(ctx context.Context, eventID uint) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id ASC").Find(&categories).Error
	return categories, err
}

// ListNominees returns the nominees of a category
func (r *catalogRepository) ListNominees(ctx context.Context, categoryID uint) ([]models.Nominee, error) {
	var nominees []models.Nominee
	err := r.db.WithContext(ctx).Where("category_id = ?", categoryID).Order("id ASC").Find(&nominees).Error
	return nominees, err
}

// GetNominee retrieves a nominee by its ID
func (r *catalogRepository) GetNominee(ctx context.Context, id uint) (*models.Nominee, error) {
	var nominee models.Nominee
	if err := r.db.WithContext(ctx).First(&nominee, id).Error; err != nil {
		return nil, err
	}
	return &nominee, nil
}
