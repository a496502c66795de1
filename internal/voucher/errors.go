package voucher

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest marks a request whose flags do not describe a valid action.
	ErrBadRequest = errors.New("bad voucher request")
	// ErrTransactionFailed marks every participant of a batch the ledger rejected.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrConfiguration is returned when no sponsor signing key is configured.
	ErrConfiguration = errors.New("sponsor account is not set")
	// ErrConflict is returned when a user already holds (or is being issued) a voucher.
	ErrConflict = errors.New("user already has a voucher")
	// ErrShutdown rejects requests still queued when the worker stops.
	ErrShutdown = errors.New("voucher worker stopped")
)

func badRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, reason)
}

// UpstreamError wraps a ledger lookup failure that is surfaced to the caller as-is.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an *UpstreamError, or returns nil for a nil err.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}
