package worker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// queued is a request waiting for the next cycle.
type queued struct {
	id  string
	req voucher.Request
}

// completion is the pending outcome of one request. done is closed exactly
// once, after voucherID/err are set.
type completion struct {
	done      chan struct{}
	voucherID common.Hash
	err       error
}

// Future is the caller's handle on a submitted request.
type Future struct {
	id string
	c  *completion
}

// ID returns the request id assigned at submission.
func (f *Future) ID() string { return f.id }

// Done is closed once the request has been resolved or rejected.
func (f *Future) Done() <-chan struct{} { return f.c.done }

// Wait blocks until the request settles or ctx is done. Abandoning the wait
// does not cancel the request.
func (f *Future) Wait(ctx context.Context) (common.Hash, error) {
	select {
	case <-f.c.done:
		return f.c.voucherID, f.c.err
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}

// Submit enqueues req for the next cycle and returns immediately. Validation
// happens when the request is drained.
func (w *Worker) Submit(req voucher.Request) *Future {
	id := uuid.NewString()
	c := &completion{done: make(chan struct{})}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		c.err = voucher.ErrShutdown
		close(c.done)
		return &Future{id: id, c: c}
	}
	w.queue = append(w.queue, queued{id: id, req: req})
	w.pending[id] = c
	depth := len(w.queue)
	w.mu.Unlock()

	w.metrics.setQueueDepth(depth)
	w.log.Debug("voucher request queued", zap.String("id", id), zap.String("user", req.User.Hex()))

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return &Future{id: id, c: c}
}

// drain atomically takes the whole queue.
func (w *Worker) drain() []queued {
	w.mu.Lock()
	items := w.queue
	w.queue = nil
	w.mu.Unlock()
	w.metrics.setQueueDepth(0)
	return items
}

func (w *Worker) queueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// settle removes id from the correlation map and completes it. It returns
// false when id was already settled (or never existed).
func (w *Worker) settle(id string, voucherID common.Hash, err error) bool {
	w.mu.Lock()
	c, ok := w.pending[id]
	if ok {
		delete(w.pending, id)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	w.metrics.observeRequest(err)

	c.voucherID = voucherID
	c.err = err
	close(c.done)
	return true
}

func (w *Worker) resolve(id string, voucherID common.Hash) bool {
	return w.settle(id, voucherID, nil)
}

func (w *Worker) reject(id string, err error) bool {
	return w.settle(id, common.Hash{}, err)
}

// Pending returns the number of requests not yet settled.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
