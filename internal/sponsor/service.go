// Package sponsor decides what a user's voucher needs and hands the work to
// the batching worker.
package sponsor

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/worker"
)

// Reader is the read side of the ledger, satisfied by *ledger.Client.
type Reader interface {
	VouchersForProgram(ctx context.Context, spender, program common.Address) ([]common.Hash, error)
	VoucherExpired(ctx context.Context, spender common.Address, id common.Hash) (bool, error)
	VoucherBalance(ctx context.Context, id common.Hash) (*big.Int, error)
}

// Submitter is satisfied by *worker.Worker.
type Submitter interface {
	Submit(req voucher.Request) *worker.Future
}

// Result is returned by Create and Update.
type Result struct {
	Message   string      `json:"message"`
	VoucherID common.Hash `json:"voucherId"`
}

// Data is the on-ledger state of one voucher.
type Data struct {
	Expired bool     `json:"voucherExpired"`
	Balance *big.Int `json:"voucherBalance"`
}

// errNotLinked is reported when the expiry lookup fails, which the ledger
// does for a voucher that belongs to someone else.
var errNotLinked = errors.New("voucher is not linked to user address")

type Service struct {
	reader Reader
	worker Submitter
	guard  *Guard // optional
	policy voucher.Policy
	log    *zap.Logger
}

func NewService(r Reader, s Submitter, g *Guard, p voucher.Policy, log *zap.Logger) *Service {
	return &Service{reader: r, worker: s, guard: g, policy: p, log: log}
}

// Create issues a voucher for user unless one already exists.
// The existing-voucher lookup runs while the in-flight guard is held.
func (s *Service) Create(ctx context.Context, user common.Address) (Result, error) {
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, user)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, fmt.Errorf("%w: creation already in progress", voucher.ErrConflict)
		}
	}

	ids, err := s.reader.VouchersForProgram(ctx, user, s.policy.Program)
	if err != nil {
		s.releaseNow(user)
		return Result{}, voucher.Upstream("list vouchers", err)
	}
	if len(ids) > 0 {
		s.releaseNow(user)
		return Result{}, voucher.ErrConflict
	}

	f := s.worker.Submit(voucher.NewCreate(user))
	id, err := f.Wait(ctx)
	s.release(f, user)
	if err != nil {
		return Result{}, err
	}
	s.log.Info("voucher created", zap.String("user", user.Hex()), zap.String("voucher", id.Hex()))
	return Result{Message: "voucher created", VoucherID: id}, nil
}

// release frees the in-flight guard once f has settled. If the caller gave up
// first, the guard is released in the background when f settles.
func (s *Service) release(f *worker.Future, user common.Address) {
	if s.guard == nil {
		return
	}
	select {
	case <-f.Done():
		s.releaseNow(user)
	default:
		go func() {
			<-f.Done()
			s.releaseNow(user)
		}()
	}
}

func (s *Service) releaseNow(user common.Address) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(context.Background(), user); err != nil {
		s.log.Warn("release inflight guard", zap.String("user", user.Hex()), zap.Error(err))
	}
}

// Update tops up and/or renews a voucher depending on its current state.
func (s *Service) Update(ctx context.Context, user common.Address, id common.Hash) (Result, error) {
	balance, err := s.reader.VoucherBalance(ctx, id)
	if err != nil {
		return Result{}, voucher.Upstream("voucher balance", err)
	}
	expired, err := s.reader.VoucherExpired(ctx, user, id)
	if err != nil {
		s.log.Debug("voucher expiry lookup failed", zap.String("voucher", id.Hex()), zap.Error(err))
		return Result{}, voucher.Upstream("voucher expiry", errNotLinked)
	}

	addTokens := balance.Cmp(s.policy.MinBalance()) < 0
	if !addTokens && !expired {
		return Result{Message: "voucher does not need to be updated", VoucherID: id}, nil
	}

	got, err := s.worker.Submit(voucher.NewUpdate(user, id, addTokens, expired)).Wait(ctx)
	if err != nil {
		return Result{}, err
	}

	var what string
	switch {
	case addTokens && expired:
		what = "tokens added and renewed"
	case addTokens:
		what = "tokens added"
	default:
		what = "renewed"
	}
	s.log.Info("voucher updated",
		zap.String("user", user.Hex()),
		zap.String("voucher", got.Hex()),
		zap.String("change", what),
	)
	return Result{Message: fmt.Sprintf("voucher updated (%s)", what), VoucherID: got}, nil
}

// Data reads the expiry and balance of a user's voucher.
func (s *Service) Data(ctx context.Context, user common.Address, id common.Hash) (Data, error) {
	expired, err := s.reader.VoucherExpired(ctx, user, id)
	if err != nil {
		return Data{}, voucher.Upstream("voucher expiry", errNotLinked)
	}
	balance, err := s.reader.VoucherBalance(ctx, id)
	if err != nil {
		return Data{}, voucher.Upstream("voucher balance", err)
	}
	return Data{Expired: expired, Balance: balance}, nil
}
