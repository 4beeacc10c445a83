package cortexa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReconcilerConfig configures the reconciliation worker.
type ReconcilerConfig struct {
	// QueueSize is the size of the buffered queue (default: 1000)
	QueueSize int

	// MaxAttempts is how many times an increment is retried before it is
	// dropped (default: 5)
	MaxAttempts int

	// RetryDelay is the wait between attempts against a still-failing
	// ledger (default: 5s)
	RetryDelay time.Duration

	// FlushTimeout bounds each replay attempt (default: 10s)
	FlushTimeout time.Duration

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking reconciliation outcomes (default: NoopMetrics)
	Metrics Metrics
}

// Reconciler replays ledger increments that were admitted fail-open while
// the backing store was unreachable. It is a best-effort queue, not a second
// source of truth: a full queue or an exhausted retry budget drops the write
// and logs it, trading bounded overshoot for availability.
type Reconciler struct {
	ledger  Ledger
	config  ReconcilerConfig
	logger  Logger
	metrics Metrics

	queue    chan pendingIncrement
	shutdown chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
}

type pendingIncrement struct {
	id       string
	req      IncrementRequest
	attempts int
}

// NewReconciler creates a reconciler replaying into the given ledger and
// starts its worker.
func NewReconciler(ledger Ledger, config ReconcilerConfig) (*Reconciler, error) {
	if ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	r := &Reconciler{
		ledger:   ledger,
		config:   config,
		logger:   config.Logger,
		metrics:  config.Metrics,
		queue:    make(chan pendingIncrement, config.QueueSize),
		shutdown: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r, nil
}

// Enqueue queues an increment for replay. It never blocks the admission
// path: when the queue is full it returns false and the write is lost.
func (r *Reconciler) Enqueue(req *IncrementRequest) bool {
	item := pendingIncrement{
		id:  uuid.NewString(),
		req: *req,
	}
	select {
	case r.queue <- item:
		return true
	default:
		return false
	}
}

// Depth returns the number of queued increments.
func (r *Reconciler) Depth() int {
	return len(r.queue)
}

// Close stops the worker after draining in-flight items.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		close(r.shutdown)
		r.wg.Wait()
	})
}

func (r *Reconciler) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.shutdown:
			// Drain what is already queued before exiting.
			for {
				select {
				case item := <-r.queue:
					r.apply(item)
				default:
					return
				}
			}
		case item := <-r.queue:
			r.apply(item)
		}
	}
}

func (r *Reconciler) apply(item pendingIncrement) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.FlushTimeout)
	_, err := r.ledger.ConditionalIncrement(ctx, &item.req)
	cancel()

	switch {
	case err == nil:
		r.metrics.RecordReconciliation("applied")

	case errors.Is(err, ErrQuotaExceeded):
		// The user already spent the day's budget while we were down.
		// The fail-open admit stands; the charge is simply not recorded.
		r.metrics.RecordReconciliation("dropped")
		r.logger.Info("reconciliation increment exceeds recovered limit, dropping",
			Field{"opId", item.id},
			Field{"userId", item.req.UserID},
			Field{"resource", item.req.Resource},
		)

	case isInfrastructureError(err):
		item.attempts++
		if item.attempts >= r.config.MaxAttempts {
			r.metrics.RecordReconciliation("dropped")
			r.logger.Error("reconciliation retries exhausted, increment lost",
				Field{"opId", item.id},
				Field{"userId", item.req.UserID},
				Field{"resource", item.req.Resource},
				Field{"attempts", item.attempts},
			)
			return
		}
		r.metrics.RecordReconciliation("retried")
		select {
		case <-r.shutdown:
		case <-time.After(r.config.RetryDelay):
		}
		select {
		case r.queue <- item:
		default:
			r.metrics.RecordReconciliation("dropped")
			r.logger.Error("reconciliation queue full on retry, increment lost",
				Field{"opId", item.id},
				Field{"userId", item.req.UserID},
			)
		}

	default:
		r.metrics.RecordReconciliation("dropped")
		r.logger.Error("reconciliation failed",
			Field{"opId", item.id},
			Field{"userId", item.req.UserID},
			Field{"error", err.Error()},
		)
	}
}
