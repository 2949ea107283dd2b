package ussd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/metrics"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
)

// DefaultMaxVotes caps the votes bought in one transaction.
const DefaultMaxVotes = 10000

// Initiator durably opens a transaction and starts its payment. It returns
// the transaction whenever one was created, also when initiation failed.
type Initiator interface {
	Checkout(ctx context.Context, req ledger.OpenRequest) (*models.Transaction, error)
}

// Reply is what the carrier shows the voter. Final ends the dialog.
type Reply struct {
	Message string
	Final   bool
}

// Machine drives the voting dialog one input at a time.
type Machine struct {
	store       SessionStore
	catalog     repository.CatalogRepository
	initiator   Initiator
	maxVotes    int
	countryCode string
	now         func() time.Time
}

func NewMachine(store SessionStore, catalog repository.CatalogRepository, initiator Initiator, maxVotes int, countryCode string) *Machine {
	if maxVotes <= 0 {
		maxVotes = DefaultMaxVotes
	}
	return &Machine{
		store:       store,
		catalog:     catalog,
		initiator:   initiator,
		maxVotes:    maxVotes,
		countryCode: countryCode,
		now:         time.Now,
	}
}

// HandleInput applies one carrier request to the dialog identified by
// sessionID. A missing, finished or expired dialog restarts at the welcome
// menu whatever the input is.
func (m *Machine) HandleInput(ctx context.Context, sessionID, phoneNumber, rawInput string) (Reply, error) {
	now := m.now()
	phone := m.normalizePhone(phoneNumber)

	session, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return Reply{Message: msgUnavailable, Final: true}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if session == nil || !session.IsAlive(now) {
		if session == nil {
			session = &models.USSDSession{SessionID: sessionID}
		}
		session.Reset(phone, now)
		return m.finish(ctx, session, Reply{Message: msgWelcome})
	}

	session.Touch(now)
	input := strings.TrimSpace(rawInput)

	if isCancel(input) {
		session.CurrentStep = models.USSDStepCancelled
		return m.finish(ctx, session, Reply{Message: msgCancelled, Final: true})
	}

	reply, err := m.step(ctx, session, input)
	if err != nil {
		log.Errorf("[USSD] Session %s at %s failed: %v", sessionID, session.CurrentStep, err)
		if saveErr := m.store.Save(ctx, session); saveErr != nil {
			log.Errorf("[USSD] Failed to save session %s: %v", sessionID, saveErr)
		}
		return Reply{Message: msgUnavailable, Final: true}, err
	}
	return m.finish(ctx, session, reply)
}

func (m *Machine) finish(ctx context.Context, session *models.USSDSession, reply Reply) (Reply, error) {
	metrics.USSDRequests.WithLabelValues(string(session.CurrentStep)).Inc()
	if err := m.store.Save(ctx, session); err != nil {
		return Reply{Message: msgUnavailable, Final: true}, fmt.Errorf("save session %s: %w", session.SessionID, err)
	}
	return reply, nil
}

func (m *Machine) step(ctx context.Context, s *models.USSDSession, input string) (Reply, error) {
	switch s.CurrentStep {
	case models.USSDStepWelcome:
		if input != welcomeVoteOption {
			return Reply{Message: withError(msgInvalid, msgWelcome)}, nil
		}
		return m.enterSelectEvent(ctx, s)

	case models.USSDStepSelectEvent:
		events, err := m.catalog.ListActiveEvents(ctx)
		if err != nil {
			return Reply{}, err
		}
		idx, ok := parseChoice(input, len(events))
		if !ok {
			return Reply{Message: withError(msgInvalid, eventsMenu(events))}, nil
		}
		id := events[idx].ID
		s.EventID = &id
		return m.enterSelectCategory(ctx, s)

	case models.USSDStepSelectCategory:
		categories, err := m.catalog.ListCategories(ctx, deref(s.EventID))
		if err != nil {
			return Reply{}, err
		}
		idx, ok := parseChoice(input, len(categories))
		if !ok {
			return Reply{Message: withError(msgInvalid, categoriesMenu(categories))}, nil
		}
		id := categories[idx].ID
		s.CategoryID = &id
		return m.enterSelectNominee(ctx, s)

	case models.USSDStepSelectNominee:
		nominees, err := m.catalog.ListNominees(ctx, deref(s.CategoryID))
		if err != nil {
			return Reply{}, err
		}
		idx, ok := parseChoice(input, len(nominees))
		if !ok {
			return Reply{Message: withError(msgInvalid, nomineesMenu(nominees))}, nil
		}
		id := nominees[idx].ID
		s.NomineeID = &id
		s.CurrentStep = models.USSDStepEnterVotes
		return Reply{Message: votesPrompt(nominees[idx].Name, m.maxVotes)}, nil

	case models.USSDStepEnterVotes:
		nominee, err := m.catalog.GetNominee(ctx, deref(s.NomineeID))
		if err != nil {
			return Reply{}, err
		}
		votes, err := strconv.Atoi(input)
		if err != nil || votes < 1 || votes > m.maxVotes {
			return Reply{Message: withError(msgInvalid, votesPrompt(nominee.Name, m.maxVotes))}, nil
		}
		event, err := m.catalog.GetEvent(ctx, deref(s.EventID))
		if err != nil {
			return Reply{}, err
		}
		s.VoteCount = votes
		s.Amount = event.VotePrice.Mul(decimal.NewFromInt(int64(votes))).Round(2)
		if !s.ReadyForConfirmation() || !s.Amount.IsPositive() {
			return Reply{Message: withError(msgInvalid, votesPrompt(nominee.Name, m.maxVotes))}, nil
		}
		s.CurrentStep = models.USSDStepConfirmPayment
		return Reply{Message: confirmMenu(nominee.Name, s.VoteCount, s.Amount)}, nil

	case models.USSDStepConfirmPayment:
		nominee, err := m.catalog.GetNominee(ctx, deref(s.NomineeID))
		if err != nil {
			return Reply{}, err
		}
		if input != confirmOption {
			return Reply{Message: withError(msgInvalid, confirmMenu(nominee.Name, s.VoteCount, s.Amount))}, nil
		}
		return m.confirm(ctx, s, nominee)

	case models.USSDStepPaymentProcessing:
		return Reply{Message: msgProcessing, Final: true}, nil
	}

	return Reply{}, fmt.Errorf("unexpected step %q", s.CurrentStep)
}

// confirm persists the dialog at payment_processing, then opens and initiates
// the transaction. The dialog only completes when a transaction exists and the
// gateway accepted the charge; otherwise it returns to confirmation.
func (m *Machine) confirm(ctx context.Context, s *models.USSDSession, nominee *models.Nominee) (Reply, error) {
	if !s.ReadyForConfirmation() {
		s.CurrentStep = models.USSDStepEnterVotes
		return Reply{Message: withError(msgInvalid, votesPrompt(nominee.Name, m.maxVotes))}, nil
	}

	s.CurrentStep = models.USSDStepPaymentProcessing
	if err := m.store.Save(ctx, s); err != nil {
		return Reply{}, err
	}

	txn, err := m.initiator.Checkout(ctx, ledger.OpenRequest{
		EventID:       deref(s.EventID),
		CategoryID:    deref(s.CategoryID),
		NomineeID:     deref(s.NomineeID),
		VoterPhone:    s.PhoneNumber,
		VoteCount:     s.VoteCount,
		Amount:        s.Amount,
		PaymentMethod: models.PaymentMethodUSSD,
	})
	if txn != nil {
		s.TransactionReference = txn.Reference
	}
	if err != nil || txn == nil {
		log.Warnf("[USSD] Checkout for session %s failed: %v", s.SessionID, err)
		s.CurrentStep = models.USSDStepConfirmPayment
		return Reply{Message: withError(msgInitiateFailed, confirmMenu(nominee.Name, s.VoteCount, s.Amount))}, nil
	}

	s.CurrentStep = models.USSDStepCompleted
	log.Infof("[USSD] Session %s started payment %s", s.SessionID, txn.Reference)
	return Reply{Message: approvePrompt(txn.Reference), Final: true}, nil
}

func (m *Machine) enterSelectEvent(ctx context.Context, s *models.USSDSession) (Reply, error) {
	events, err := m.catalog.ListActiveEvents(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(events) == 0 {
		s.CurrentStep = models.USSDStepCancelled
		return Reply{Message: msgNoEvents, Final: true}, nil
	}
	s.CurrentStep = models.USSDStepSelectEvent
	return Reply{Message: eventsMenu(events)}, nil
}

func (m *Machine) enterSelectCategory(ctx context.Context, s *models.USSDSession) (Reply, error) {
	categories, err := m.catalog.ListCategories(ctx, deref(s.EventID))
	if err != nil {
		return Reply{}, err
	}
	if len(categories) == 0 {
		s.CurrentStep = models.USSDStepCancelled
		return Reply{Message: msgNoCategories, Final: true}, nil
	}
	s.CurrentStep = models.USSDStepSelectCategory
	return Reply{Message: categoriesMenu(categories)}, nil
}

func (m *Machine) enterSelectNominee(ctx context.Context, s *models.USSDSession) (Reply, error) {
	nominees, err := m.catalog.ListNominees(ctx, deref(s.CategoryID))
	if err != nil {
		return Reply{}, err
	}
	if len(nominees) == 0 {
		s.CurrentStep = models.USSDStepCancelled
		return Reply{Message: msgNoNominees, Final: true}, nil
	}
	s.CurrentStep = models.USSDStepSelectNominee
	return Reply{Message: nomineesMenu(nominees)}, nil
}

func (m *Machine) normalizePhone(phone string) string {
	if normalized, err := payment.NormalizeMSISDN(phone, m.countryCode); err == nil {
		return normalized
	}
	return strings.TrimSpace(phone)
}

func eventsMenu(events []models.Event) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return listMenu("Select event:", names)
}

func categoriesMenu(categories []models.Category) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return listMenu("Select category:", names)
}

func nomineesMenu(nominees []models.Nominee) string {
	names := make([]string, len(nominees))
	for i, n := range nominees {
		names[i] = n.Name
	}
	return listMenu("Select nominee:", names)
}

// parseChoice turns a 1-based menu choice into an index.
func parseChoice(input string, n int) (int, bool) {
	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > n {
		return 0, false
	}
	return choice - 1, true
}

func deref(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
