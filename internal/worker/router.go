package worker

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// FailedBatch describes a batch the ledger did not finalize.
type FailedBatch struct {
	At      time.Time     `json:"at"`
	Reason  string        `json:"reason"`
	Entries []FailedEntry `json:"entries"`
}

// FailedEntry is one participant of a failed batch.
type FailedEntry struct {
	RequestID string         `json:"request_id"`
	User      common.Address `json:"user"`
	Kind      string         `json:"kind"`
	VoucherID common.Hash    `json:"voucher_id"`
}

// FailureJournal records failed batches for later inspection.
type FailureJournal interface {
	RecordFailedBatch(ctx context.Context, fb FailedBatch) error
}

// route settles every batch participant with the batch outcome.
func (w *Worker) route(ctx context.Context, b batch, submitErr error) {
	if submitErr == nil {
		for _, e := range b.entries {
			if !w.resolve(e.requestID, e.voucherID) {
				w.log.Warn("request already settled", zap.String("id", e.requestID))
			}
		}
		w.log.Info("voucher batch finalized", zap.Int("ops", len(b.ops)))
		return
	}

	w.log.Error("voucher batch failed", zap.Int("ops", len(b.ops)), zap.Error(submitErr))
	// The record is written before any participant is rejected.
	w.recordFailure(ctx, b, submitErr)
	for _, e := range b.entries {
		w.reject(e.requestID, submitErr)
	}
}

func (w *Worker) recordFailure(ctx context.Context, b batch, submitErr error) {
	if w.opts.Journal == nil || len(b.entries) == 0 {
		return
	}
	fb := FailedBatch{At: time.Now().UTC(), Reason: submitErr.Error()}
	for _, e := range b.entries {
		fb.Entries = append(fb.Entries, FailedEntry{
			RequestID: e.requestID,
			User:      e.user,
			Kind:      e.kind.String(),
			VoucherID: e.voucherID,
		})
	}
	if err := w.opts.Journal.RecordFailedBatch(ctx, fb); err != nil {
		w.log.Warn("record failed batch", zap.Error(err))
	}
}
