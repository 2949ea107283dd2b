package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/metrics"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
)

const (
	PassStatus    = "status"
	PassCrediting = "crediting"
	PassSessions  = "sessions"
)

// PassResult counts what one pass did.
type PassResult struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	Credited  int `json:"credited"`
}

// RunResult aggregates a full reconciliation run.
type RunResult struct {
	Status          PassResult `json:"status"`
	Crediting       PassResult `json:"crediting"`
	SessionsExpired int64      `json:"sessions_expired"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
}

// Job heals what callbacks missed: it polls the gateway for stale pending
// transactions, tops up under-credited ones and expires idle USSD dialogs.
// Every pass is safe to run concurrently with itself and with webhooks.
type Job struct {
	cfg          Config
	ledger       *ledger.Ledger
	transactions repository.TransactionRepository
	sessions     repository.USSDSessionRepository
	provider     payment.Provider
	limiter      *rate.Limiter
	now          func() time.Time
}

// NewJob creates a job. sessions may be nil when dialogs live in Redis and
// expire there on their own.
func NewJob(cfg Config, l *ledger.Ledger, transactions repository.TransactionRepository, sessions repository.USSDSessionRepository, provider payment.Provider) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = models.USSDSessionTTL
	}

	limit := rate.Inf
	burst := cfg.Concurrency
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
		burst = int(math.Max(1, math.Ceil(cfg.QPS)))
	}

	return &Job{
		cfg:          cfg,
		ledger:       l,
		transactions: transactions,
		sessions:     sessions,
		provider:     provider,
		limiter:      rate.NewLimiter(limit, burst),
		now:          time.Now,
	}
}

// RunOnce runs the status, crediting and session passes in that order. A
// failing pass does not stop the others.
func (j *Job) RunOnce(ctx context.Context) (*RunResult, error) {
	result := &RunResult{StartedAt: j.now()}
	var errs []error

	status, err := j.StatusSweep(ctx)
	result.Status = status
	if err != nil {
		errs = append(errs, fmt.Errorf("status sweep: %w", err))
	}

	crediting, err := j.CreditingSweep(ctx)
	result.Crediting = crediting
	if err != nil {
		errs = append(errs, fmt.Errorf("crediting sweep: %w", err))
	}

	expired, err := j.SessionSweep(ctx)
	result.SessionsExpired = expired
	if err != nil {
		errs = append(errs, fmt.Errorf("session sweep: %w", err))
	}

	result.FinishedAt = j.now()
	log.Infof("[Reconcile] Run finished: status=%+v crediting=%+v sessions_expired=%d", result.Status, result.Crediting, result.SessionsExpired)
	return result, errors.Join(errs...)
}

// StatusSweep asks the gateway about pending transactions older than the
// grace period and applies terminal answers through the ledger's
// conditional update. Gateway errors skip the item until the next run.
func (j *Job) StatusSweep(ctx context.Context) (PassResult, error) {
	var result PassResult
	started := time.Now()
	defer observePass(PassStatus, started)

	stale, err := j.transactions.ListStalePending(ctx, j.now().Add(-j.cfg.Grace), j.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list stale pending: %w", err)
	}
	result.Scanned = len(stale)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for i := range stale {
		txn := stale[i]
		g.Go(func() error {
			outcome, credited := j.checkOne(gCtx, &txn)
			metrics.ReconcileItems.WithLabelValues(PassStatus, outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			result.Credited += credited
			switch outcome {
			case "completed":
				result.Completed++
			case "failed":
				result.Failed++
			case "error":
				result.Errors++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if result.Scanned > 0 {
		log.Infof("[Reconcile] Status sweep: scanned=%d completed=%d failed=%d skipped=%d errors=%d",
			result.Scanned, result.Completed, result.Failed, result.Skipped, result.Errors)
	}
	return result, ctx.Err()
}

func (j *Job) checkOne(ctx context.Context, txn *models.Transaction) (string, int) {
	if err := j.limiter.Wait(ctx); err != nil {
		return "skipped", 0
	}

	queryCtx, cancel := context.WithTimeout(ctx, j.cfg.QueryTimeout)
	resp, err := j.provider.QueryStatus(queryCtx, payment.StatusQuery{
		ClientReference:   txn.Reference,
		ExternalReference: txn.ExternalRef(),
	})
	cancel()
	if err != nil {
		log.Warnf("[Reconcile] Status query for %s failed: %v", txn.Reference, err)
		return "error", 0
	}
	if !resp.Success {
		log.Warnf("[Reconcile] Status query for %s was not answered, retrying next cycle", txn.Reference)
		return "error", 0
	}

	status, ok := resp.Resolve()
	if !ok {
		return "pending", 0
	}

	outcome := ledger.Outcome{ExternalReference: resp.ExternalReference}
	if status == models.TransactionStatusFailed {
		outcome.Reason = "status query reported " + resp.Status
	}
	settled, err := j.ledger.Settle(ctx, txn, status, outcome)
	if err != nil {
		log.Errorf("[Reconcile] Settling %s as %s failed: %v", txn.Reference, status, err)
		if settled.Won {
			return string(status), settled.Credited
		}
		return "error", 0
	}
	if !settled.Won {
		return "lost_race", 0
	}
	log.Infof("[Reconcile] Recovered %s as %s (credited %d)", txn.Reference, status, settled.Credited)
	return string(status), settled.Credited
}

// CreditingSweep credits the exact shortfall of completed transactions that
// own fewer votes than they paid for.
func (j *Job) CreditingSweep(ctx context.Context) (PassResult, error) {
	var result PassResult
	started := time.Now()
	defer observePass(PassCrediting, started)

	txns, err := j.transactions.ListUnderCredited(ctx, j.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list under-credited: %w", err)
	}
	result.Scanned = len(txns)

	for i := range txns {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		txn := &txns[i]
		credited, err := j.ledger.CreditShortfall(ctx, txn)
		if err != nil {
			result.Errors++
			metrics.ReconcileItems.WithLabelValues(PassCrediting, "error").Inc()
			log.Errorf("[Reconcile] Crediting %s failed: %v", txn.Reference, err)
			continue
		}
		result.Credited += credited
		if credited > 0 {
			result.Completed++
			metrics.ReconcileItems.WithLabelValues(PassCrediting, "credited").Inc()
			log.Infof("[Reconcile] Topped up %s with %d votes", txn.Reference, credited)
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// SessionSweep marks dialogs idle for longer than the inactivity window as
// expired. Transactions opened by those dialogs are left alone.
func (j *Job) SessionSweep(ctx context.Context) (int64, error) {
	if j.sessions == nil {
		return 0, nil
	}
	started := time.Now()
	defer observePass(PassSessions, started)

	expired, err := j.sessions.ExpireIdle(ctx, j.now().Add(-j.cfg.SessionIdle))
	if err != nil {
		return 0, fmt.Errorf("expire idle sessions: %w", err)
	}
	if expired > 0 {
		metrics.ReconcileItems.WithLabelValues(PassSessions, "expired").Add(float64(expired))
		log.Infof("[Reconcile] Expired %d idle USSD sessions", expired)
	}
	return expired, nil
}

func observePass(pass string, started time.Time) {
	metrics.ReconcileRuns.WithLabelValues(pass).Inc()
	metrics.ReconcileLatency.WithLabelValues(pass).Observe(time.Since(started).Seconds())
}
