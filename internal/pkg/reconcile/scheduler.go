package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/VoteFox/internal/pkg/cache"
)

const lockKey = "votefox:reconcile:lock"

// Scheduler runs the job on a fixed interval until stopped
type Scheduler struct {
	job        *Job
	interval   time.Duration
	rdb        redis.Cmdable
	instanceID string
	ticker     *time.Ticker
	stopCh     chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewScheduler creates a scheduler. With a non-nil rdb only one instance
// runs a cycle at a time.
func NewScheduler(job *Job, interval time.Duration, rdb redis.Cmdable) *Scheduler {
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	return &Scheduler{
		job:        job,
		interval:   interval,
		rdb:        rdb,
		instanceID: uuid.NewString(),
	}
}

// Start starts the background worker
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// fresh channel and context per start so the scheduler can be restarted
	s.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.ticker = time.NewTicker(s.interval)

	s.wg.Add(1)
	go s.worker(ctx, s.ticker, s.stopCh)

	log.Infof("[Reconcile] Scheduler started (interval: %s)", s.interval)
}

// Stop stops the worker and waits for a running cycle to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Reconcile] Scheduler stopping...")
	s.ticker.Stop()
	close(s.stopCh)
	s.cancel()
	s.running = false

	s.wg.Wait()
	log.Info("[Reconcile] Scheduler stopped")
}

func (s *Scheduler) worker(ctx context.Context, ticker *time.Ticker, stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle runs the job once, unless another instance holds the lock. It
// reports whether the job ran.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if s.rdb != nil {
		lock, ok, err := cache.TryLock(ctx, s.rdb, lockKey, s.instanceID, s.interval)
		switch {
		case err != nil:
			log.Warnf("[Reconcile] Lock unavailable, running anyway: %v", err)
		case !ok:
			log.Debug("[Reconcile] Another instance holds the lock, skipping cycle")
			return false
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					log.Warnf("[Reconcile] Failed to release lock: %v", err)
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if _, err := s.job.RunOnce(runCtx); err != nil {
		log.Errorf("[Reconcile] Run failed: %v", err)
	}
	return true
}
