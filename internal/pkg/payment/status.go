package payment

import (
	"strings"

	"github.com/ManuelReschke/VoteFox/app/models"
)

var paidStatuses = map[string]struct{}{
	"success":    {},
	"successful": {},
	"paid":       {},
	"completed":  {},
	"approved":   {},
}

var failedStatuses = map[string]struct{}{
	"failed":    {},
	"failure":   {},
	"declined":  {},
	"rejected":  {},
	"cancelled": {},
	"canceled":  {},
	"expired":   {},
	"reversed":  {},
	"refunded":  {},
}

// ResolveStatus maps a gateway status onto a terminal transaction status.
// ok is false while the gateway still reports the payment as in flight.
func ResolveStatus(status string, isPaid bool) (models.TransactionStatus, bool) {
	if isPaid {
		return models.TransactionStatusCompleted, true
	}
	s := strings.ToLower(strings.TrimSpace(status))
	if _, found := paidStatuses[s]; found {
		return models.TransactionStatusCompleted, true
	}
	if _, found := failedStatuses[s]; found {
		return models.TransactionStatusFailed, true
	}
	return models.TransactionStatusPending, false
}

// Resolve maps a status lookup answer onto a terminal transaction status.
func (r *StatusResponse) Resolve() (models.TransactionStatus, bool) {
	return ResolveStatus(r.Status, r.IsPaid)
}
