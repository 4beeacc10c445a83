// Package tiered provides a hot/cold tiered ledger. The hot ledger (Redis,
// memory) enforces the fused check-and-increment at low latency; the cold
// ledger (Postgres, Firestore) keeps the durable daily history, fed by an
// asynchronous mirror of every admitted increment.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Config configures the tiered ledger behavior.
type Config struct {
	// Hot is the enforcement ledger for high-frequency admission checks
	Hot cortexa.Ledger

	// Cold is the durable ledger holding the day-by-day history
	Cold cortexa.Ledger

	// SyncBufferSize is the size of the buffered channel for cold mirror
	// writes. Default: 1000
	SyncBufferSize int

	// MirrorErrorHandler is called when a cold mirror write fails or is
	// dropped. Essential for monitoring consistency drift.
	MirrorErrorHandler func(error)
}

// Ledger implements cortexa.Ledger over a hot and a cold backend.
// Admission runs against the hot ledger; each admitted increment is mirrored
// to the cold ledger in the background, so the cold side trails the hot side
// by at most the queue depth.
type Ledger struct {
	hot  cortexa.Ledger
	cold cortexa.Ledger
	conf Config

	syncQueue chan *cortexa.IncrementRequest
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered ledger and starts its mirror worker.
func New(config Config) (*Ledger, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered ledger: both hot and cold ledgers are required")
	}
	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	l := &Ledger{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan *cortexa.IncrementRequest, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}
	l.startWorker()
	return l, nil
}

// Close stops the mirror worker, draining queued writes best effort.
func (l *Ledger) Close() error {
	select {
	case <-l.shutdown:
		// Already closed
	default:
		close(l.shutdown)
		l.wg.Wait()
	}
	return nil
}

// startWorker runs the background mirror loop. Sequential processing keeps
// per-user ordering between hot and cold.
func (l *Ledger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case req := <-l.syncQueue:
				l.mirror(req)
			case <-l.shutdown:
				for {
					select {
					case req := <-l.syncQueue:
						l.mirror(req)
					default:
						return
					}
				}
			}
		}
	}()
}

// mirror replays one admitted increment against the cold ledger. The hot
// ledger already enforced the limit, so the mirror write must never deny:
// it runs with the limit lifted.
func (l *Ledger) mirror(req *cortexa.IncrementRequest) {
	mirrorReq := *req
	mirrorReq.Limit = math.MaxInt

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := l.cold.ConditionalIncrement(ctx, &mirrorReq); err != nil {
		if l.conf.MirrorErrorHandler != nil {
			l.conf.MirrorErrorHandler(fmt.Errorf("tiered ledger: cold mirror failed: %w", err))
		}
	}
}

// Read implements cortexa.Ledger with a read-through strategy: the hot
// ledger answers when it has the day's record, the cold ledger otherwise.
func (l *Ledger) Read(ctx context.Context, userID string, day time.Time) (*cortexa.QuotaRecord, error) {
	record, err := l.hot.Read(ctx, userID, day)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, cortexa.ErrRecordNotFound) && !errors.Is(err, cortexa.ErrLedgerUnavailable) {
		return nil, err
	}
	return l.cold.Read(ctx, userID, day)
}

// ConditionalIncrement implements cortexa.Ledger. Enforcement runs on the
// hot ledger; when the hot ledger is unreachable the call falls through to
// the cold ledger so admission stays exact rather than failing open.
func (l *Ledger) ConditionalIncrement(ctx context.Context, req *cortexa.IncrementRequest) (int, error) {
	count, err := l.hot.ConditionalIncrement(ctx, req)
	if err != nil {
		if errors.Is(err, cortexa.ErrLedgerUnavailable) {
			return l.cold.ConditionalIncrement(ctx, req)
		}
		return count, err
	}

	reqClone := *req
	select {
	case l.syncQueue <- &reqClone:
	default:
		if l.conf.MirrorErrorHandler != nil {
			l.conf.MirrorErrorHandler(errors.New("tiered ledger: mirror queue full, dropping cold write"))
		}
	}

	return count, nil
}
