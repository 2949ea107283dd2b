package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/VoteFox/app/models"
	"gorm.io/gorm"
)

// TransitionFields carries the columns written together with a terminal status.
type TransitionFields struct {
	ExternalReference string
	FailureReason     string
	CompletedAt       *time.Time
}

// TransactionRepository defines the ledger operations on payment attempts.
// Status changes only go through TransitionFromPending.
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id uint) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	TransitionFromPending(ctx context.Context, reference string, to models.TransactionStatus, fields TransitionFields) (bool, error)
	SetExternalReference(ctx context.Context, reference, externalReference string) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	ListUnderCredited(ctx context.Context, limit int) ([]models.Transaction, error)
}

// VoteRepository defines the append-only operations on credited votes.
type VoteRepository interface {
	CountByTransaction(ctx context.Context, transactionID uint) (int64, error)
	SeqsByTransaction(ctx context.Context, transactionID uint) ([]int, error)
	ListByTransaction(ctx context.Context, transactionID uint) ([]models.Vote, error)
	CreateMissing(ctx context.Context, votes []models.Vote) (int64, error)
}

// WebhookEventRepository defines the audit log operations for payment callbacks.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uint, outcome models.WebhookOutcome, processingError string) error
	FindSettledByHash(ctx context.Context, payloadHash string, excludeID uint) (*models.WebhookEvent, error)
	ListByReference(ctx context.Context, reference string) ([]models.WebhookEvent, error)
}

// USSDSessionRepository defines durable storage for USSD dialogs.
type USSDSessionRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.USSDSession, error)
	Save(ctx context.Context, session *models.USSDSession) error
	ExpireIdle(ctx context.Context, lastActivityBefore time.Time) (int64, error)
}

// CatalogRepository reads the event catalog owned by the dashboard.
type CatalogRepository interface {
	ListActiveEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, id uint) (*models.Event, error)
	ListCategories(ctx context.Context, eventID uint) ([]models.Category, error)
	ListNominees(ctx context.Context, categoryID uint) ([]models.Nominee, error)
	GetNominee(ctx context.Context, id uint) (*models.Nominee, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Transaction  TransactionRepository
	Vote         VoteRepository
	WebhookEvent WebhookEventRepository
	USSDSession  USSDSessionRepository
	Catalog      CatalogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transaction:  NewTransactionRepository(db),
		Vote:         NewVoteRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		USSDSession:  NewUSSDSessionRepository(db),
		Catalog:      NewCatalogRepository(db),
	}
}
