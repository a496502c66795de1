package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// submit wraps ops in one forceBatch, signs it with the sponsor key and waits
// for a terminal status. Only FINALIZED counts as success.
func (w *Worker) submit(ctx context.Context, ops []ledger.Operation) error {
	b, err := w.ledger.ForceBatch(ops)
	if err != nil {
		return fmt.Errorf("%w: %v", voucher.ErrTransactionFailed, err)
	}

	key := w.ledger.SponsorKey()
	if key == nil {
		return voucher.ErrConfiguration
	}

	if w.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.SubmitTimeout)
		defer cancel()
	}

	terminal := make(chan ledger.TxStatus, 1)
	onStatus := func(s ledger.TxStatus) {
		w.log.Debug("batch status", zap.String("status", s.String()), zap.Int("ops", b.Operations))
		if !s.Terminal() {
			return
		}
		select {
		case terminal <- s:
		default:
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.ledger.SignAndSubmit(ctx, key, b, onStatus)
	}()

	for {
		select {
		case s := <-terminal:
			if s == ledger.StatusFinalized {
				return nil
			}
			return fmt.Errorf("%w: %s", voucher.ErrTransactionFailed, s)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("%w: %v", voucher.ErrTransactionFailed, err)
			}
			// Submitted; the terminal status may still be on its way.
			errCh = nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", voucher.ErrTransactionFailed, ctx.Err())
		}
	}
}
