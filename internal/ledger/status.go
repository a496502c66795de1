package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// TxStatus is the lifecycle of a submitted batch transaction.
type TxStatus uint8

const (
	StatusBroadcast TxStatus = iota
	StatusInBlock
	StatusFinalized
	StatusDropped
	StatusInvalid
	StatusUsurped
)

func (s TxStatus) String() string {
	switch s {
	case StatusBroadcast:
		return "BROADCAST"
	case StatusInBlock:
		return "IN_BLOCK"
	case StatusFinalized:
		return "FINALIZED"
	case StatusDropped:
		return "DROPPED"
	case StatusInvalid:
		return "INVALID"
	case StatusUsurped:
		return "USURPED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further status will follow.
func (s TxStatus) Terminal() bool {
	switch s {
	case StatusFinalized, StatusDropped, StatusInvalid, StatusUsurped:
		return true
	default:
		return false
	}
}

// chainReader is the part of ethclient the watcher needs.
type chainReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// missingPolls is how many consecutive polls a transaction may be unknown to
// the node before it is reported dropped or usurped.
const missingPolls = 3

// watcher polls a broadcast transaction until it reaches a terminal status.
// Read errors are retried on the next tick; only ctx ends the wait early.
type watcher struct {
	reader   chainReader
	from     common.Address
	depth    uint64
	interval time.Duration
	onStatus func(TxStatus)
	log      *zap.Logger
}

func (w *watcher) wait(ctx context.Context, tx *types.Transaction) error {
	interval := w.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := w.log
	if log == nil {
		log = zap.NewNop()
	}

	var (
		inBlock bool
		missing int
		failed  int
	)
	for {
		status, done, err := w.poll(ctx, tx, &inBlock, &missing)
		switch {
		case err != nil:
			failed++
			log.Warn("tx status poll failed",
				zap.String("tx", tx.Hash().Hex()),
				zap.Int("consecutive", failed),
				zap.Error(err),
			)
		case done:
			w.onStatus(status)
			return nil
		default:
			failed = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll performs one status check. done is true when status is terminal.
func (w *watcher) poll(ctx context.Context, tx *types.Transaction, inBlock *bool, missing *int) (TxStatus, bool, error) {
	receipt, err := w.reader.TransactionReceipt(ctx, tx.Hash())
	switch {
	case err == nil:
		*missing = 0
		if receipt.Status == types.ReceiptStatusFailed {
			return StatusInvalid, true, nil
		}
		if !*inBlock {
			*inBlock = true
			w.onStatus(StatusInBlock)
		}
		head, err := w.reader.HeaderByNumber(ctx, nil)
		if err != nil {
			return 0, false, fmt.Errorf("head: %w", err)
		}
		if head.Number.Uint64() >= receipt.BlockNumber.Uint64()+w.depth {
			return StatusFinalized, true, nil
		}
		return 0, false, nil

	case errors.Is(err, ethereum.NotFound):
		// A reorg can pull an included tx back out; wait for it again.
		*inBlock = false
		_, _, err := w.reader.TransactionByHash(ctx, tx.Hash())
		if err == nil {
			*missing = 0
			return 0, false, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return 0, false, fmt.Errorf("tx by hash: %w", err)
		}
		*missing++
		if *missing < missingPolls {
			return 0, false, nil
		}
		nonce, err := w.reader.NonceAt(ctx, w.from, nil)
		if err != nil {
			return 0, false, fmt.Errorf("nonce: %w", err)
		}
		if nonce > tx.Nonce() {
			return StatusUsurped, true, nil
		}
		return StatusDropped, true, nil

	default:
		return 0, false, fmt.Errorf("receipt: %w", err)
	}
}
