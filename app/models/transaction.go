package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionStatus is the payment state of a Transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentMethod describes how the voter was charged.
type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodUSSD        PaymentMethod = "ussd"
	PaymentMethodPayProxy    PaymentMethod = "payproxy"
)

// ReferencePrefix starts every client generated transaction reference.
const ReferencePrefix = "VF-"

// Transaction is one payment attempt. Rows are never deleted.
type Transaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	Reference         string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_transactions_reference" json:"reference" validate:"required,max=64"`
	ExternalReference *string           `gorm:"type:varchar(191);default:null;index" json:"external_reference,omitempty"`
	EventID           uint              `gorm:"not null;index" json:"event_id" validate:"required"`
	CategoryID        uint              `gorm:"not null;index" json:"category_id" validate:"required"`
	NomineeID         uint              `gorm:"not null;index" json:"nominee_id" validate:"required"`
	VoterPhone        string            `gorm:"type:varchar(20);not null;index" json:"voter_phone" validate:"required,min=9,max=20"`
	VoteCount         int               `gorm:"not null" json:"vote_count" validate:"required,min=1"`
	Amount            decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentMethod     PaymentMethod     `gorm:"type:varchar(20);not null;default:'ussd'" json:"payment_method" validate:"oneof=mobile_money ussd payproxy"`
	Status            TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_transactions_status_created,priority:1" json:"status"`
	FailureReason     string            `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt         time.Time         `gorm:"autoCreateTime;index:idx_transactions_status_created,priority:2" json:"created_at"`
	CompletedAt       *time.Time        `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Validate checks struct constraints and the positive amount invariant.
func (t *Transaction) Validate() error {
	v := validator.New()
	if err := v.Struct(t); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// BeforeCreate assigns a reference when the caller did not provide one.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.Reference == "" {
		t.Reference = NewTransactionReference()
	}
	if t.Status == "" {
		t.Status = TransactionStatusPending
	}
	return nil
}

// ExternalRef returns the provider reference or an empty string.
func (t *Transaction) ExternalRef() string {
	if t.ExternalReference == nil {
		return ""
	}
	return *t.ExternalReference
}

// NewTransactionReference returns a fresh reference like "VF-3F2A9C1B7D4E".
func NewTransactionReference() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return ReferencePrefix + strings.ToUpper(raw[:12])
}
