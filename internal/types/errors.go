package types

import "errors"

// Sentinel errors shared by the façade and its internal packages.
//
// All components use these sentinel errors for known error conditions and
// wrap transport/store errors with context using fmt.Errorf("%s: %w", msg, err).

// Façade errors - returned synchronously by the Processor's public API.
var (
	// ErrMissingEventHandler is returned by Start when no onEvent handler was registered.
	ErrMissingEventHandler = errors.New("onEvent handler is required before Start")

	// ErrMissingErrorHandler is returned by Start when no onError handler was registered.
	ErrMissingErrorHandler = errors.New("onError handler is required before Start")

	// ErrDuplicateHandler is returned when a handler is registered twice without clearing it.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrHandlersLocked is returned when a handler is registered while the processor is running.
	ErrHandlersLocked = errors.New("handlers can only be set while the processor is idle")

	// ErrStoreRequired is returned when NewProcessor is called without a Store.
	ErrStoreRequired = errors.New("store is required")

	// ErrClientRequired is returned when NewProcessor is called without a transport Client.
	ErrClientRequired = errors.New("client is required")
)

// Pump/checkpoint errors.
var (
	// ErrEmptyEvent is returned when the user handler requests a checkpoint for an
	// event that carries no position (a synthetic or empty event).
	ErrEmptyEvent = errors.New("cannot checkpoint an empty event")

	// ErrPumpStopped names a checkpoint request made after the owning pump
	// stopped. The pump's checkpoint function does not return it; it writes
	// the checkpoint whether or not the pump is still running.
	ErrPumpStopped = errors.New("pump already stopped")
)

// Store errors.
var (
	// ErrOwnershipNotFound names a renewal that targets a record the Store no
	// longer has. The kvstore Store does not return it; it omits such entries
	// from ClaimOwnership's result.
	ErrOwnershipNotFound = errors.New("ownership record not found")

	// ErrClaimConflict names a compare-and-set claim that lost a race to a
	// concurrent writer. The kvstore Store does not return it; it omits the
	// losing entry from ClaimOwnership's result, and the caller simply does
	// not gain the partition.
	ErrClaimConflict = errors.New("ownership claim conflict")
)

// PermanentError wraps a transport or store error that a Partition Reader's
// retry policy must not retry (invalid credentials, resource-not-found,
// quota-exceeded). Client/PartitionClient implementations return one of
// these to opt a failure out of the reader's backoff loop.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as a PermanentError.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError

	return errors.As(err, &pe)
}
