package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
	"github.com/ManuelReschke/VoteFox/internal/pkg/testutil"
	"github.com/ManuelReschke/VoteFox/internal/pkg/webhook"
)

type stubProvider struct {
	mu          sync.Mutex
	statuses    map[string]*payment.StatusResponse
	errs        map[string]error
	delay       time.Duration
	calls       int
	inFlight    int
	maxInFlight int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		statuses: map[string]*payment.StatusResponse{},
		errs:     map[string]error{},
	}
}

func (p *stubProvider) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) QueryStatus(ctx context.Context, query payment.StatusQuery) (*payment.StatusResponse, error) {
	p.mu.Lock()
	p.calls++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	resp, err := p.statuses[query.ClientReference], p.errs[query.ClientReference]
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &payment.StatusResponse{Success: true, Status: "pending"}, nil
	}
	return resp, nil
}

func (p *stubProvider) set(reference string, resp *payment.StatusResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[reference] = resp
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	provider *stubProvider
	job      *Job
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	l := ledger.New(db)
	provider := newStubProvider()
	cfg := DefaultConfig()
	cfg.QPS = 0
	job := NewJob(cfg, l, repository.NewTransactionRepository(db), repository.NewUSSDSessionRepository(db), provider)
	return &fixture{db: db, ledger: l, provider: provider, job: job}
}

func (f *fixture) stalePending(t *testing.T, votes int, amount string) *models.Transaction {
	t.Helper()
	txn := testutil.PendingTransaction(t, f.db, votes, amount)
	backdate(t, f.db, txn, 10*time.Minute)
	return txn
}

func backdate(t *testing.T, db *gorm.DB, txn *models.Transaction, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Model(&models.Transaction{}).Where("id = ?", txn.ID).
		UpdateColumn("created_at", time.Now().Add(-age)).Error)
}

func (f *fixture) votes(t *testing.T, txn *models.Transaction) []models.Vote {
	t.Helper()
	votes, err := repository.NewVoteRepository(f.db).ListByTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	return votes
}

func (f *fixture) reload(t *testing.T, txn *models.Transaction) *models.Transaction {
	t.Helper()
	stored, err := f.ledger.Lookup(context.Background(), txn.Reference)
	require.NoError(t, err)
	return stored
}

func TestScenario_WebhookThenReplayThenSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	processor := webhook.NewProcessor("payproxy", "", f.ledger, repository.NewWebhookEventRepository(f.db))
	txn := testutil.PendingTransaction(t, f.db, 3, "3.00")
	payload := []byte(fmt.Sprintf(`{"status":"success","data":{"client_reference":%q}}`, txn.Reference))

	res := processor.Handle(ctx, payload, "")
	require.Equal(t, models.WebhookOutcomeApplied, res.Outcome)

	votes := f.votes(t, txn)
	require.Len(t, votes, 3)
	for _, v := range votes {
		assert.True(t, v.Amount.Equal(decimal.RequireFromString("1.00")))
	}
	assert.Equal(t, models.TransactionStatusCompleted, f.reload(t, txn).Status)

	processor.Handle(ctx, payload, "")
	assert.Len(t, f.votes(t, txn), 3)

	result, err := f.job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Crediting.Credited)
	assert.Zero(t, result.Status.Scanned)
	assert.Len(t, f.votes(t, txn), 3)
}

func TestScenario_LostWebhookRecoveredBySweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.stalePending(t, 3, "3.00")
	f.provider.set(txn.Reference, &payment.StatusResponse{Success: true, IsPaid: true, Status: "paid", ExternalReference: "EXT-7"})

	status, err := f.job.StatusSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Scanned)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 3, status.Credited)

	stored := f.reload(t, txn)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)
	assert.Equal(t, "EXT-7", stored.ExternalRef())

	crediting, err := f.job.CreditingSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, crediting.Credited)
	assert.Len(t, f.votes(t, txn), 3)
}

func TestCreditingSweep_TopsUpAfterCrashBeforeCrediting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.stalePending(t, 7, "10.00")

	// status committed, process died before any vote was written
	won, err := f.ledger.Finalize(ctx, txn.Reference, models.TransactionStatusCompleted, ledger.Outcome{})
	require.NoError(t, err)
	require.True(t, won)
	_, err = f.ledger.Credit(ctx, txn, 2)
	require.NoError(t, err)

	result, err := f.job.CreditingSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 5, result.Credited)

	votes := f.votes(t, txn)
	require.Len(t, votes, 7)
	sum := decimal.Zero
	for _, v := range votes {
		sum = sum.Add(v.Amount)
	}
	assert.True(t, sum.Equal(decimal.RequireFromString("10.00")), "sum %s", sum)

	again, err := f.job.CreditingSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Scanned)
}

func TestStatusSweep_RespectsGracePeriod(t *testing.T) {
	f := newFixture(t)
	fresh := testutil.PendingTransaction(t, f.db, 1, "1.00")
	f.provider.set(fresh.Reference, &payment.StatusResponse{Success: true, IsPaid: true})

	result, err := f.job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Zero(t, f.provider.calls)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, fresh).Status)
}

func TestStatusSweep_OutcomesPerItem(t *testing.T) {
	f := newFixture(t)
	paid := f.stalePending(t, 2, "2.00")
	declined := f.stalePending(t, 1, "1.00")
	inFlight := f.stalePending(t, 1, "1.00")
	broken := f.stalePending(t, 1, "1.00")

	f.provider.set(paid.Reference, &payment.StatusResponse{Success: true, IsPaid: true, Status: "paid"})
	f.provider.set(declined.Reference, &payment.StatusResponse{Success: true, Status: "declined"})
	f.provider.set(inFlight.Reference, &payment.StatusResponse{Success: true, Status: "processing"})
	f.provider.errs[broken.Reference] = &payment.ProviderError{Op: "status", Kind: payment.KindUnavailable, StatusCode: 502}

	result, err := f.job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 2, result.Credited)

	assert.Equal(t, models.TransactionStatusCompleted, f.reload(t, paid).Status)
	d := f.reload(t, declined)
	assert.Equal(t, models.TransactionStatusFailed, d.Status)
	assert.Equal(t, "status query reported declined", d.FailureReason)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, inFlight).Status)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, broken).Status)
	assert.Empty(t, f.votes(t, declined))
}

func TestStatusSweep_UnansweredLookupKeepsPending(t *testing.T) {
	f := newFixture(t)
	txn := f.stalePending(t, 2, "2.00")
	f.provider.set(txn.Reference, &payment.StatusResponse{Success: false, Status: "failed"})

	result, err := f.job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, txn).Status)

	// the payment still settles once the gateway answers
	f.provider.set(txn.Reference, &payment.StatusResponse{Success: true, IsPaid: true, Status: "paid"})
	result, err = f.job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Len(t, f.votes(t, txn), 2)
}

func TestStatusSweep_GatewayLookupFailureOverHTTP(t *testing.T) {
	f := newFixture(t)
	txn := f.stalePending(t, 1, "1.00")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"status":"failed","message":"lookup failed, try later"}`))
	}))
	defer srv.Close()

	client := payment.NewClient(payment.Config{
		Provider:  "payproxy",
		BaseURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   2 * time.Second,
	})
	cfg := DefaultConfig()
	cfg.QPS = 0
	job := NewJob(cfg, f.ledger, repository.NewTransactionRepository(f.db), nil, client)

	result, err := job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, result.Failed)

	stored := f.reload(t, txn)
	assert.Equal(t, models.TransactionStatusPending, stored.Status)
	assert.Empty(t, stored.FailureReason)
}

func TestStatusSweep_NeverTouchesTerminalTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.stalePending(t, 2, "2.00")
	_, err := f.ledger.Finalize(ctx, txn.Reference, models.TransactionStatusFailed, ledger.Outcome{Reason: "declined"})
	require.NoError(t, err)
	f.provider.set(txn.Reference, &payment.StatusResponse{Success: true, IsPaid: true})

	result, err := f.job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Status.Scanned)

	stored := f.reload(t, txn)
	assert.Equal(t, models.TransactionStatusFailed, stored.Status)
	assert.Empty(t, f.votes(t, txn))
}

func TestStatusSweep_BoundedConcurrency(t *testing.T) {
	f := newFixture(t)
	f.provider.delay = 20 * time.Millisecond
	for i := 0; i < 10; i++ {
		f.stalePending(t, 1, "1.00")
	}

	cfg := DefaultConfig()
	cfg.Concurrency = 3
	cfg.QPS = 0
	job := NewJob(cfg, f.ledger, repository.NewTransactionRepository(f.db), nil, f.provider)

	result, err := job.StatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, result.Scanned)
	assert.Equal(t, 10, f.provider.calls)
	assert.LessOrEqual(t, f.provider.maxInFlight, 3)
}

func TestStatusSweep_ConcurrentWithWebhook(t *testing.T) {
	for i := 0; i < 5; i++ {
		f := newFixture(t)
		ctx := context.Background()
		processor := webhook.NewProcessor("payproxy", "", f.ledger, repository.NewWebhookEventRepository(f.db))
		txn := f.stalePending(t, 3, "3.00")
		f.provider.set(txn.Reference, &payment.StatusResponse{Success: true, IsPaid: true, Status: "paid"})
		payload := []byte(fmt.Sprintf(`{"status":"success","reference":%q}`, txn.Reference))

		var wg sync.WaitGroup
		var hookRes webhook.Result
		var sweepRes PassResult
		wg.Add(2)
		go func() {
			defer wg.Done()
			hookRes = processor.Handle(ctx, payload, "")
		}()
		go func() {
			defer wg.Done()
			var err error
			sweepRes, err = f.job.StatusSweep(ctx)
			assert.NoError(t, err)
		}()
		wg.Wait()

		winners := sweepRes.Completed
		if hookRes.Outcome == models.WebhookOutcomeApplied {
			winners++
		}
		assert.Equal(t, 1, winners, "exactly one writer finalizes")
		assert.Equal(t, 3, hookRes.Credited+sweepRes.Credited)
		assert.Len(t, f.votes(t, txn), 3)
	}
}

func TestSessionSweep_ExpiresIdleDialogsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := repository.NewUSSDSessionRepository(f.db)
	now := time.Now()

	idle := &models.USSDSession{SessionID: "idle"}
	idle.Reset("233241234567", now.Add(-11*time.Minute))
	idle.CurrentStep = models.USSDStepEnterVotes
	active := &models.USSDSession{SessionID: "active"}
	active.Reset("233241234567", now.Add(-time.Minute))
	done := &models.USSDSession{SessionID: "done"}
	done.Reset("233241234567", now.Add(-time.Hour))
	done.CurrentStep = models.USSDStepCompleted
	for _, s := range []*models.USSDSession{idle, active, done} {
		require.NoError(t, sessions.Save(ctx, s))
	}

	expired, err := f.job.SessionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	got, err := sessions.GetBySessionID(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, models.USSDStepExpired, got.CurrentStep)
	got, err = sessions.GetBySessionID(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, models.USSDStepWelcome, got.CurrentStep)
	got, err = sessions.GetBySessionID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.USSDStepCompleted, got.CurrentStep)
}

func TestSessionSweep_DoesNotCancelTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessions := repository.NewUSSDSessionRepository(f.db)
	txn := testutil.PendingTransaction(t, f.db, 1, "1.00")

	s := &models.USSDSession{SessionID: "paying"}
	s.Reset("233241234567", time.Now().Add(-20*time.Minute))
	s.CurrentStep = models.USSDStepPaymentProcessing
	s.TransactionReference = txn.Reference
	require.NoError(t, sessions.Save(ctx, s))

	_, err := f.job.SessionSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, f.reload(t, txn).Status)
}

func TestSessionSweep_NilRepository(t *testing.T) {
	f := newFixture(t)
	job := NewJob(DefaultConfig(), f.ledger, repository.NewTransactionRepository(f.db), nil, f.provider)
	expired, err := job.SessionSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
}
