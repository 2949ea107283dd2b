package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/metrics"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
)

// Result describes what one delivery did. It is informational only, the HTTP
// answer to the gateway is always a success.
type Result struct {
	EventID   uint
	Reference string
	Outcome   models.WebhookOutcome
	Status    models.TransactionStatus
	Credited  int
	Err       error
}

// Processor applies payment callbacks to the ledger. Deliveries may repeat
// and race each other or the reconciliation job; every mutation goes through
// the ledger's conditional update.
type Processor struct {
	provider string
	secret   string
	ledger   *ledger.Ledger
	events   repository.WebhookEventRepository
}

// NewProcessor creates a processor. An empty secret disables signature checks.
func NewProcessor(provider, secret string, l *ledger.Ledger, events repository.WebhookEventRepository) *Processor {
	return &Processor{
		provider: provider,
		secret:   secret,
		ledger:   l,
		events:   events,
	}
}

// Handle records the delivery and then applies it.
func (p *Processor) Handle(ctx context.Context, raw []byte, signature string) Result {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	cb, parseErr := ParseCallback(raw)
	if cb == nil {
		cb = &Callback{}
	}

	event := &models.WebhookEvent{
		Provider:          p.provider,
		Reference:         cb.Reference,
		ExternalReference: cb.ExternalReference,
		ReportedStatus:    cb.Status,
		PayloadJSON:       string(raw),
		PayloadHash:       hash,
		SignatureValid:    p.secret != "" && VerifySignature(raw, signature, p.secret),
	}
	if err := p.events.Create(ctx, event); err != nil {
		log.Errorf("[Webhook] Failed to record delivery for %q: %v", cb.Reference, err)
		metrics.WebhookDeliveries.WithLabelValues(string(models.WebhookOutcomeError)).Inc()
		return Result{Reference: cb.Reference, Outcome: models.WebhookOutcomeError, Err: err}
	}

	result := p.apply(ctx, event, cb, parseErr)
	result.EventID = event.ID
	result.Reference = cb.Reference

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	if err := p.events.MarkProcessed(context.WithoutCancel(ctx), event.ID, result.Outcome, errText); err != nil {
		log.Errorf("[Webhook] Failed to mark delivery %d as %s: %v", event.ID, result.Outcome, err)
	}
	metrics.WebhookDeliveries.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case models.WebhookOutcomeApplied:
		log.Infof("[Webhook] %s -> %s, credited %d votes", cb.Reference, result.Status, result.Credited)
	case models.WebhookOutcomeUnknownReference, models.WebhookOutcomeUnparsable, models.WebhookOutcomeError:
		log.Warnf("[Webhook] Delivery %d: %s: %v", event.ID, result.Outcome, result.Err)
	}
	return result
}

func (p *Processor) apply(ctx context.Context, event *models.WebhookEvent, cb *Callback, parseErr error) Result {
	if p.secret != "" && !event.SignatureValid {
		return Result{Outcome: models.WebhookOutcomeInvalidSignature, Err: errors.New("invalid webhook signature")}
	}
	if parseErr != nil {
		return Result{Outcome: models.WebhookOutcomeUnparsable, Err: parseErr}
	}
	if cb.Reference == "" {
		return Result{Outcome: models.WebhookOutcomeUnparsable, Err: &ledger.ValidationError{Field: "reference", Message: "no transaction reference in payload"}}
	}

	prior, err := p.events.FindSettledByHash(ctx, event.PayloadHash, event.ID)
	if err != nil {
		return Result{Outcome: models.WebhookOutcomeError, Err: fmt.Errorf("dedup lookup: %w", err)}
	}
	if prior != nil {
		return Result{Outcome: models.WebhookOutcomeDuplicate}
	}

	txn, err := p.ledger.Lookup(ctx, cb.Reference)
	if err != nil {
		if errors.Is(err, ledger.ErrDataIntegrity) {
			return Result{Outcome: models.WebhookOutcomeUnknownReference, Err: err}
		}
		return Result{Outcome: models.WebhookOutcomeError, Err: err}
	}
	if txn.Status.IsTerminal() {
		return Result{Outcome: models.WebhookOutcomeAlreadyFinal, Status: txn.Status}
	}

	if underpaid(txn, cb) {
		log.Warnf("[Webhook] %s reports amount %s below charged %s (charges %s)",
			cb.Reference, cb.Amount.String(), txn.Amount.StringFixed(2), cb.Charges.String())
	}

	status, ok := payment.ResolveStatus(cb.Status, cb.IsPaid)
	if !ok {
		return Result{Outcome: models.WebhookOutcomeIgnored, Status: txn.Status}
	}

	outcome := ledger.Outcome{ExternalReference: cb.ExternalReference}
	if status == models.TransactionStatusFailed {
		outcome.Reason = "provider reported " + cb.Status
	}
	settled, err := p.ledger.Settle(ctx, txn, status, outcome)
	if err != nil {
		if settled.Won {
			// the status is final; the crediting sweep tops up what is missing
			return Result{Outcome: models.WebhookOutcomeApplied, Status: status, Credited: settled.Credited, Err: err}
		}
		return Result{Outcome: models.WebhookOutcomeError, Err: err}
	}
	if !settled.Won {
		return Result{Outcome: models.WebhookOutcomeLostRace, Status: status}
	}
	return Result{Outcome: models.WebhookOutcomeApplied, Status: status, Credited: settled.Credited}
}

// underpaid reports a callback amount below what the voter was charged.
func underpaid(txn *models.Transaction, cb *Callback) bool {
	return !cb.Amount.IsZero() && cb.Amount.LessThan(txn.Amount)
}
