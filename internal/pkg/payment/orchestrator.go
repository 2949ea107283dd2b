package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
)

// InitiateResult is what the gateway told us when it accepted a charge.
type InitiateResult struct {
	ExternalReference string
	Accepted          bool
}

// Orchestrator performs the single outbound initiation call for a transaction
// and records its immediate outcome.
type Orchestrator struct {
	cfg          Config
	provider     Provider
	ledger       *ledger.Ledger
	transactions repository.TransactionRepository
}

func NewOrchestrator(cfg Config, provider Provider, l *ledger.Ledger, transactions repository.TransactionRepository) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		provider:     provider,
		ledger:       l,
		transactions: transactions,
	}
}

// Description is the charge text shown to the payer. It embeds the reference
// so gateways that only echo descriptions still carry it back.
func Description(txn *models.Transaction) string {
	unit := "votes"
	if txn.VoteCount == 1 {
		unit = "vote"
	}
	return fmt.Sprintf("%d %s Ref: (%s)", txn.VoteCount, unit, txn.Reference)
}

// Initiate asks the gateway to charge the voter for txn. On a 2xx answer the
// gateway id is stored and the transaction stays pending. On any failure the
// transaction is marked failed and a *ProviderError is returned. There is no
// retry here.
func (o *Orchestrator) Initiate(ctx context.Context, txn *models.Transaction) (*InitiateResult, error) {
	if txn.Status != models.TransactionStatusPending {
		return nil, fmt.Errorf("transaction %s is %s, expected pending", txn.Reference, txn.Status)
	}

	payer, err := NormalizeMSISDN(txn.VoterPhone, o.cfg.CountryCode)
	if err != nil {
		payer = txn.VoterPhone
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.provider.InitiatePayment(callCtx, InitiateRequest{
		Amount:          txn.Amount,
		PayerMSISDN:     payer,
		CallbackURL:     o.cfg.CallbackURL(),
		ClientReference: txn.Reference,
		Description:     Description(txn),
	})
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Op: "initiate", Kind: KindNetwork, Err: err}
		}
		log.Warnf("[Payment] Initiation failed for %s: %v", txn.Reference, perr)

		// the caller's context may already be done, the failure must still be recorded
		won, ferr := o.ledger.Finalize(context.WithoutCancel(ctx), txn.Reference, models.TransactionStatusFailed, ledger.Outcome{Reason: perr.Error()})
		if ferr != nil {
			log.Errorf("[Payment] Could not mark %s as failed: %v", txn.Reference, ferr)
		} else if won {
			txn.Status = models.TransactionStatusFailed
			txn.FailureReason = perr.Error()
		}
		return nil, perr
	}

	result := &InitiateResult{ExternalReference: resp.ExternalReference, Accepted: true}
	if resp.ExternalReference != "" {
		if err := o.transactions.SetExternalReference(ctx, txn.Reference, resp.ExternalReference); err != nil {
			log.Errorf("[Payment] Could not store external reference for %s: %v", txn.Reference, err)
		} else {
			ext := resp.ExternalReference
			txn.ExternalReference = &ext
		}
	}

	log.Infof("[Payment] Initiated %s (external=%s)", txn.Reference, resp.ExternalReference)
	return result, nil
}

// Checkout durably opens a transaction and initiates its payment. The
// transaction is returned whenever it was created, even if initiation failed.
func (o *Orchestrator) Checkout(ctx context.Context, req ledger.OpenRequest) (*models.Transaction, error) {
	txn, err := o.ledger.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := o.Initiate(ctx, txn); err != nil {
		return txn, err
	}
	return txn, nil
}
