package worker

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// entry correlates an emitted operation with the request that caused it.
type entry struct {
	requestID string
	user      common.Address
	kind      voucher.IntentKind
	voucherID common.Hash
}

// batch is one cycle's worth of operations. ops[i] belongs to entries[i].
type batch struct {
	ops     []ledger.Operation
	entries []entry
}

// build turns drained requests into operations, in order. Requests that
// produce no operation are settled here so every handle in the cycle is
// settled exactly once.
func (w *Worker) build(items []queued) batch {
	var b batch
	p := w.opts.Policy

	for _, it := range items {
		in, err := it.req.Intent()
		if err != nil {
			w.log.Warn("voucher request rejected",
				zap.String("id", it.id),
				zap.String("user", it.req.User.Hex()),
				zap.Error(err),
			)
			w.reject(it.id, err)
			continue
		}

		switch in.Kind {
		case voucher.IntentCreate:
			issued, err := w.ledger.IssueVoucher(it.req.User, p.InitialBalance(), p.InitialDuration, p.AllowedPrograms())
			if err != nil {
				w.reject(it.id, voucher.Upstream("issue voucher", err))
				continue
			}
			b.ops = append(b.ops, issued.Operation)
			b.entries = append(b.entries, entry{it.id, it.req.User, in.Kind, issued.VoucherID})

		case voucher.IntentNone:
			// Nothing to change: hand back the voucher as it is.
			w.resolve(it.id, in.VoucherID)

		default:
			op, err := w.updateOp(it.req.User, in)
			if err != nil {
				w.reject(it.id, err)
				continue
			}
			b.ops = append(b.ops, op)
			b.entries = append(b.entries, entry{it.id, it.req.User, in.Kind, in.VoucherID})
		}
	}
	return b
}

// updateOp prepares the update operation for an update intent.
func (w *Worker) updateOp(user common.Address, in voucher.Intent) (ledger.Operation, error) {
	upd, ok := w.opts.Policy.UpdateFor(in.Kind)
	if !ok {
		return ledger.Operation{}, fmt.Errorf("%w: no update payload for intent %s", voucher.ErrBadRequest, in.Kind)
	}
	op, err := w.ledger.UpdateVoucher(user, in.VoucherID, upd)
	if err != nil {
		return ledger.Operation{}, voucher.Upstream("update voucher", err)
	}
	return op, nil
}
