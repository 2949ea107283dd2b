package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/metrics"
)

// OpenRequest describes a payment attempt the voter confirmed.
type OpenRequest struct {
	EventID       uint                 `validate:"required"`
	CategoryID    uint                 `validate:"required"`
	NomineeID     uint                 `validate:"required"`
	VoterPhone    string               `validate:"required,min=9,max=20"`
	VoteCount     int                  `validate:"required,min=1"`
	Amount        decimal.Decimal      `validate:"-"`
	PaymentMethod models.PaymentMethod `validate:"omitempty,oneof=mobile_money ussd payproxy"`
}

// Outcome carries what a finalizing writer knows about the payment.
type Outcome struct {
	ExternalReference string
	Reason            string
}

// SettleResult reports what a Settle call changed.
type SettleResult struct {
	Won      bool
	Credited int
}

// Ledger owns every write to transactions and votes.
type Ledger struct {
	db           *gorm.DB
	transactions repository.TransactionRepository
	votes        repository.VoteRepository
	validate     *validator.Validate
	now          func() time.Time
}

// New creates a ledger on top of db
func New(db *gorm.DB) *Ledger {
	return &Ledger{
		db:           db,
		transactions: repository.NewTransactionRepository(db),
		votes:        repository.NewVoteRepository(db),
		validate:     validator.New(),
		now:          time.Now,
	}
}

// Open validates the request and durably creates a pending transaction with a fresh reference.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*models.Transaction, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Field: "Amount", Message: models.ErrNonPositiveAmount.Error()}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodUSSD
	}

	txn := &models.Transaction{
		Reference:     models.NewTransactionReference(),
		EventID:       req.EventID,
		CategoryID:    req.CategoryID,
		NomineeID:     req.NomineeID,
		VoterPhone:    req.VoterPhone,
		VoteCount:     req.VoteCount,
		Amount:        req.Amount.Round(2),
		PaymentMethod: req.PaymentMethod,
		Status:        models.TransactionStatusPending,
	}
	if err := txn.Validate(); err != nil {
		return nil, toValidationError(err)
	}
	if err := l.transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	metrics.TransactionsOpened.WithLabelValues(string(txn.PaymentMethod)).Inc()
	log.Infof("[Ledger] Opened transaction %s for %d votes (%s)", txn.Reference, txn.VoteCount, txn.Amount.StringFixed(2))
	return txn, nil
}

// Lookup loads a transaction by reference. An unknown reference yields ErrDataIntegrity.
func (l *Ledger) Lookup(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := l.transactions.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown transaction reference %q", ErrDataIntegrity, reference)
		}
		return nil, fmt.Errorf("load transaction %s: %w", reference, err)
	}
	return txn, nil
}

// Finalize moves a pending transaction into a terminal status. won is false when
// another writer already finalized it; that is not an error.
func (l *Ledger) Finalize(ctx context.Context, reference string, status models.TransactionStatus, outcome Outcome) (bool, error) {
	fields := repository.TransitionFields{
		ExternalReference: outcome.ExternalReference,
		FailureReason:     outcome.Reason,
	}
	if status == models.TransactionStatusCompleted {
		now := l.now()
		fields.CompletedAt = &now
		fields.FailureReason = ""
	}

	won, err := l.transactions.TransitionFromPending(ctx, reference, status, fields)
	if err != nil {
		return false, fmt.Errorf("finalize %s as %s: %w", reference, status, err)
	}

	metrics.TransactionTransitions.WithLabelValues(string(status), strconv.FormatBool(won)).Inc()
	if won {
		log.Infof("[Ledger] Transaction %s is now %s", reference, status)
	}
	return won, nil
}

// Settle finalizes a transaction and, when this call won a transition to
// completed, credits the votes it paid for.
func (l *Ledger) Settle(ctx context.Context, txn *models.Transaction, status models.TransactionStatus, outcome Outcome) (SettleResult, error) {
	var result SettleResult

	won, err := l.Finalize(ctx, txn.Reference, status, outcome)
	if err != nil {
		return result, err
	}
	result.Won = won
	if !won || status != models.TransactionStatusCompleted {
		return result, nil
	}

	credited, err := l.CreditShortfall(ctx, txn)
	result.Credited = credited
	if err != nil {
		return result, fmt.Errorf("credit %s after settle: %w", txn.Reference, err)
	}
	return result, nil
}

// CreditShortfall recounts existing votes and credits exactly the missing ones.
func (l *Ledger) CreditShortfall(ctx context.Context, txn *models.Transaction) (int, error) {
	existing, err := l.votes.CountByTransaction(ctx, txn.ID)
	if err != nil {
		return 0, fmt.Errorf("count votes of %s: %w", txn.Reference, err)
	}
	shortfall := txn.VoteCount - int(existing)
	if shortfall <= 0 {
		return 0, nil
	}
	return l.Credit(ctx, txn, shortfall)
}

// Credit inserts up to count votes for the missing ordinals of a completed
// transaction. It runs in one database transaction, re-reads the transaction
// inside it and never creates more than VoteCount votes in total.
func (l *Ledger) Credit(ctx context.Context, txn *models.Transaction, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	var created int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := repository.NewTransactionRepository(tx).GetByID(ctx, txn.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: transaction %d vanished", ErrDataIntegrity, txn.ID)
			}
			return err
		}
		if current.Status != models.TransactionStatusCompleted {
			return fmt.Errorf("%w: %s is %s", ErrNotCompleted, current.Reference, current.Status)
		}

		votes := repository.NewVoteRepository(tx)
		seqs, err := votes.SeqsByTransaction(ctx, current.ID)
		if err != nil {
			return err
		}
		taken := make(map[int]struct{}, len(seqs))
		for _, seq := range seqs {
			taken[seq] = struct{}{}
		}

		shares := SplitAmount(current.Amount, current.VoteCount)
		now := l.now()
		missing := make([]models.Vote, 0, count)
		for seq := 1; seq <= current.VoteCount && len(missing) < count; seq++ {
			if _, ok := taken[seq]; ok {
				continue
			}
			missing = append(missing, models.Vote{
				EventID:          current.EventID,
				CategoryID:       current.CategoryID,
				NomineeID:        current.NomineeID,
				VoterPhone:       current.VoterPhone,
				TransactionID:    current.ID,
				Seq:              seq,
				PaymentReference: current.Reference,
				Amount:           shares[seq-1],
				PaymentStatus:    models.TransactionStatusCompleted,
				VotedAt:          now,
			})
		}

		created, err = votes.CreateMissing(ctx, missing)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("credit votes for %s: %w", txn.Reference, err)
	}

	if created > 0 {
		metrics.VotesCredited.Add(float64(created))
		log.Infof("[Ledger] Credited %d votes for %s", created, txn.Reference)
	}
	return int(created), nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed on %q", fe.Tag())}
	}
	if errors.Is(err, models.ErrNonPositiveAmount) {
		return &ValidationError{Field: "Amount", Message: err.Error()}
	}
	return &ValidationError{Message: err.Error()}
}
