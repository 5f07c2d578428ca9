package eventproc

import (
	"fmt"

	"github.com/arloliu/eventproc/internal/types"
)

// Re-exported sentinel errors. See internal/types/errors.go for the
// authoritative documentation of each.
var (
	ErrMissingEventHandler = types.ErrMissingEventHandler
	ErrMissingErrorHandler = types.ErrMissingErrorHandler
	ErrDuplicateHandler    = types.ErrDuplicateHandler
	ErrHandlersLocked      = types.ErrHandlersLocked
	ErrStoreRequired       = types.ErrStoreRequired
	ErrClientRequired      = types.ErrClientRequired

	ErrEmptyEvent  = types.ErrEmptyEvent
	ErrPumpStopped = types.ErrPumpStopped

	ErrOwnershipNotFound = types.ErrOwnershipNotFound
	ErrClaimConflict     = types.ErrClaimConflict

	ErrAlreadyStarted = fmt.Errorf("processor already started")
	ErrNotStarted     = fmt.Errorf("processor not started")
)

// NewPermanentError and IsPermanent let Store/Client implementations and
// their callers agree on which errors bypass the Partition Reader's retry
// policy.
var (
	NewPermanentError = types.NewPermanentError
	IsPermanent       = types.IsPermanent
)

// Error wraps an error surfaced by the core with the operation that
// produced it and a classification, per the four-kind error model
// (Transient, Permanent, Configuration, Logic).
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
