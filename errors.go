package neurobus

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. They are wrapped with context via fmt.Errorf("%w: ...")
// so callers can still use errors.Is/errors.As against these values.
var (
	// ErrValidation covers empty topics/patterns, out-of-range thresholds,
	// and non-invocable handlers. Raised synchronously at the call site.
	ErrValidation = errors.New("neurobus: validation error")

	// ErrBusNotStarted is returned by Publish/Subscribe whenever the Bus is
	// not in the started state: before Start, and also after Stop.
	ErrBusNotStarted = errors.New("neurobus: bus not started")

	// ErrBusStopped is returned by Start on a Bus that has been stopped.
	ErrBusStopped = errors.New("neurobus: bus stopped")

	// ErrRegistryFull is returned by Registry.Add when capacity is reached.
	ErrRegistryFull = errors.New("neurobus: registry full")

	// ErrDuplicateSubscription is the identity-error kind for a subscription
	// id that already exists. Registry.Add assigns every subscription a fresh
	// id from its own counter, so it never returns this error.
	ErrDuplicateSubscription = errors.New("neurobus: duplicate subscription")

	// ErrSubscriptionNotFound is returned by Registry.Get for an absent id.
	ErrSubscriptionNotFound = errors.New("neurobus: subscription not found")

	// ErrHandlerFailure wraps a failed handler's error in its HandlerOutcome.
	// Publish never returns it, whatever EnableErrorIsolation is set to: a
	// publisher sees handler failures only in the DispatchResult from Wait.
	ErrHandlerFailure = errors.New("neurobus: handler failure")

	// ErrHandlerTimeout marks a per-handler timeout outcome.
	ErrHandlerTimeout = errors.New("neurobus: handler timeout")

	// ErrDispatchTimeout is the error kind for an overall dispatch that
	// exceeded its budget. The Dispatcher reports that case as
	// StateTimedOut on the DispatchResult and does not return this error.
	ErrDispatchTimeout = errors.New("neurobus: dispatch timeout")

	// ErrSeamFailure is the error kind for a best-effort failure in an
	// optional subsystem (enrichment, persistence, relay, semantic routing).
	// The Bus passes the seam's own error to ReportSeamFailure without this
	// wrap, and never propagates it to the publisher.
	ErrSeamFailure = errors.New("neurobus: seam failure")
)

// validationErrorf builds an ErrValidation-wrapped error with a formatted reason.
func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
