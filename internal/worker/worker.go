// Package worker batches voucher requests into atomic ledger transactions.
//
// Callers Submit requests and receive a Future. A single loop goroutine
// drains the queue, builds one operation per valid request, submits all of
// them as one forceBatch transaction and settles every Future with the
// outcome of that transaction. Only one batch is in flight at a time.
package worker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// Ledger is satisfied by *ledger.Client.
type Ledger interface {
	IssueVoucher(spender common.Address, balance *big.Int, duration uint32, programs []common.Address) (ledger.Issued, error)
	UpdateVoucher(spender common.Address, id common.Hash, upd voucher.Update) (ledger.Operation, error)
	ForceBatch(ops []ledger.Operation) (ledger.Batch, error)
	SignAndSubmit(ctx context.Context, key *ecdsa.PrivateKey, b ledger.Batch, onStatus func(ledger.TxStatus)) error
	SponsorKey() *ecdsa.PrivateKey
}

// State is the loop's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted is returned by Start on a worker that was started or stopped before.
var ErrAlreadyStarted = errors.New("voucher worker already started")

// Options configure a Worker.
type Options struct {
	Policy voucher.Policy
	// PollInterval is the fallback wake-up when no Submit signal arrives.
	PollInterval time.Duration
	// SubmitTimeout bounds the wait for a terminal status; 0 means unbounded.
	SubmitTimeout time.Duration
	Journal       FailureJournal // optional
	Metrics       *Metrics       // optional
}

type Worker struct {
	ledger  Ledger
	opts    Options
	metrics *Metrics
	log     *zap.Logger

	mu       sync.Mutex
	queue    []queued
	pending  map[string]*completion
	started  bool
	stopping bool // Stop was called
	closed   bool // Submit rejects; set once the loop can no longer drain

	state atomic.Int32
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func New(l Ledger, opts Options, log *zap.Logger) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Worker{
		ledger:  l,
		opts:    opts,
		metrics: opts.Metrics,
		log:     log.With(zap.String("component", "voucher-worker")),
		pending: make(map[string]*completion),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// State reports the current loop state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Start launches the loop. Cancelling ctx stops the loop after the current
// cycle; the worker is then stopped and queued requests are rejected with
// voucher.ErrShutdown.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started || w.stopping || w.closed {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
	w.log.Info("voucher worker started", zap.Duration("poll_interval", w.opts.PollInterval))
	return nil
}

// Stop waits for the in-flight cycle, stops the loop and rejects every
// request that was never drained with voucher.ErrShutdown. It is idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopping = true
	started := w.started
	w.mu.Unlock()

	close(w.stop)
	if started {
		<-w.done
		return
	}
	w.shutdown()
	close(w.done)
}

// shutdown closes the worker to new requests and rejects everything queued.
func (w *Worker) shutdown() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.state.Store(int32(StateStopped))

	abandoned := w.drain()
	for _, it := range abandoned {
		w.reject(it.id, voucher.ErrShutdown)
	}
	w.log.Info("voucher worker stopped", zap.Int("rejected", len(abandoned)))
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	defer w.shutdown()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	// Cycles outlive ctx cancellation so an in-flight batch is settled.
	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if w.queueLen() == 0 {
			w.state.Store(int32(StateIdle))
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-w.wake:
			case <-ticker.C:
			}
			continue
		}

		w.state.Store(int32(StateRunning))
		w.runCycle(cycleCtx)
	}
}

// runCycle performs one drain → build → submit → route pass.
func (w *Worker) runCycle(ctx context.Context) {
	start := time.Now()
	items := w.drain()
	b := w.build(items)

	err := w.submit(ctx, b.ops)
	w.route(ctx, b, err)

	w.metrics.observeBatch(len(b.ops), err, time.Since(start))
	w.log.Debug("voucher cycle done",
		zap.Int("drained", len(items)),
		zap.Int("ops", len(b.ops)),
		zap.Duration("elapsed", time.Since(start)),
	)
}
