package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// USSDStep is the position of a dialog inside the USSD menu.
type USSDStep string

const (
	USSDStepWelcome           USSDStep = "welcome"
	USSDStepSelectEvent       USSDStep = "select_event"
	USSDStepSelectCategory    USSDStep = "select_category"
	USSDStepSelectNominee     USSDStep = "select_nominee"
	USSDStepEnterVotes        USSDStep = "enter_votes"
	USSDStepConfirmPayment    USSDStep = "confirm_payment"
	USSDStepPaymentProcessing USSDStep = "payment_processing"
	USSDStepCompleted         USSDStep = "completed"
	USSDStepCancelled         USSDStep = "cancelled"
	USSDStepExpired           USSDStep = "expired"
)

// USSDSessionTTL is the inactivity window after which a dialog is dead.
const USSDSessionTTL = 10 * time.Minute

// IsTerminal reports whether the dialog can no longer advance.
func (s USSDStep) IsTerminal() bool {
	switch s {
	case USSDStepCompleted, USSDStepCancelled, USSDStepExpired:
		return true
	default:
		return false
	}
}

// USSDSession is one in-progress phone dialog.
type USSDSession struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	SessionID            string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_ussd_sessions_session_id" json:"session_id"`
	PhoneNumber          string          `gorm:"type:varchar(20);not null;index" json:"phone_number"`
	CurrentStep          USSDStep        `gorm:"type:varchar(32);not null;default:'welcome';index:idx_ussd_sessions_step_activity,priority:1" json:"current_step"`
	EventID              *uint           `gorm:"default:null" json:"event_id,omitempty"`
	CategoryID           *uint           `gorm:"default:null" json:"category_id,omitempty"`
	NomineeID            *uint           `gorm:"default:null" json:"nominee_id,omitempty"`
	VoteCount            int             `gorm:"not null;default:0" json:"vote_count"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	TransactionReference string          `gorm:"type:varchar(64)" json:"transaction_reference,omitempty"`
	LastActivity         time.Time       `gorm:"not null;index:idx_ussd_sessions_step_activity,priority:2" json:"last_activity"`
	ExpiresAt            time.Time       `gorm:"not null" json:"expires_at"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAlive reports whether the dialog may be resumed at now.
func (s *USSDSession) IsAlive(now time.Time) bool {
	return !s.CurrentStep.IsTerminal() && now.Before(s.ExpiresAt)
}

// Touch refreshes the inactivity window.
func (s *USSDSession) Touch(now time.Time) {
	s.LastActivity = now
	s.ExpiresAt = now.Add(USSDSessionTTL)
}

// ReadyForConfirmation reports whether every selection needed to charge the voter is present.
func (s *USSDSession) ReadyForConfirmation() bool {
	return s.EventID != nil && *s.EventID != 0 &&
		s.CategoryID != nil && *s.CategoryID != 0 &&
		s.NomineeID != nil && *s.NomineeID != 0 &&
		s.VoteCount >= 1
}

// Reset returns the dialog to a fresh welcome state, keeping the row identity.
func (s *USSDSession) Reset(phoneNumber string, now time.Time) {
	s.PhoneNumber = phoneNumber
	s.CurrentStep = USSDStepWelcome
	s.EventID = nil
	s.CategoryID = nil
	s.NomineeID = nil
	s.VoteCount = 0
	s.Amount = decimal.Zero
	s.TransactionReference = ""
	s.Touch(now)
}
