// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/internal/pkg/database"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with every table migrated.
// A single connection serializes access the same way row locks would on MySQL.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Catalog is a seeded event with one category and two nominees.
type Catalog struct {
	Event    models.Event
	Category models.Category
	Nominees []models.Nominee
}

// SeedCatalog inserts a small catalog priced at the given vote price.
func SeedCatalog(t *testing.T, db *gorm.DB, votePrice string) Catalog {
	t.Helper()

	c := Catalog{
		Event: models.Event{Name: "Campus Awards", VotePrice: decimal.RequireFromString(votePrice), IsActive: true},
	}
	if err := db.Create(&c.Event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	c.Category = models.Category{EventID: c.Event.ID, Name: "Best Artist"}
	if err := db.Create(&c.Category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	c.Nominees = []models.Nominee{
		{CategoryID: c.Category.ID, Name: "Ama Serwaa", Code: "BA01"},
		{CategoryID: c.Category.ID, Name: "Kojo Mensah", Code: "BA02"},
	}
	if err := db.Create(&c.Nominees).Error; err != nil {
		t.Fatalf("seed nominees: %v", err)
	}
	return c
}

// PendingTransaction inserts a pending transaction with the given vote count and amount.
func PendingTransaction(t *testing.T, db *gorm.DB, voteCount int, amount string) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		EventID:       1,
		CategoryID:    1,
		NomineeID:     1,
		VoterPhone:    "233241234567",
		VoteCount:     voteCount,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: models.PaymentMethodUSSD,
		Status:        models.TransactionStatusPending,
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}
