package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vote is one credited vote unit owned by a Transaction.
// Seq is the 1-based ordinal inside the owning transaction; (transaction_id, seq)
// is unique so the same ordinal can never be credited twice.
type Vote struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	EventID          uint              `gorm:"not null;index" json:"event_id"`
	CategoryID       uint              `gorm:"not null;index" json:"category_id"`
	NomineeID        uint              `gorm:"not null;index" json:"nominee_id"`
	VoterPhone       string            `gorm:"type:varchar(20);not null" json:"voter_phone"`
	TransactionID    uint              `gorm:"not null;uniqueIndex:ux_votes_transaction_seq,priority:1" json:"transaction_id"`
	Seq              int               `gorm:"not null;uniqueIndex:ux_votes_transaction_seq,priority:2" json:"seq"`
	PaymentReference string            `gorm:"type:varchar(64);not null;index" json:"payment_reference"`
	Amount           decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentStatus    TransactionStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"payment_status"`
	VotedAt          time.Time         `gorm:"not null" json:"voted_at"`
}
