// Package errs defines the error taxonomy shared by every collector
// component: TransientError, PermanentError, ConfigurationError and
// ShutdownSignal. Components catch and classify everything except the last
// two, which are expected to propagate to the process boundary.
package errs

import (
	"errors"
	"fmt"
)

// Transient wraps an error that is expected to clear on retry: connection
// resets, 5xx/429, serialization failures, heartbeat timeouts.
type Transient struct {
	Op  string
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// NewTransient wraps err as a Transient error attributed to op.
func NewTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Op: op, Err: err}
}

// Permanent wraps an error that will never succeed on retry: malformed
// responses, schema violations, unknown instrument, capacity breach. The
// offending unit is skipped, never retried.
type Permanent struct {
	Op  string
	Err error
}

func (e *Permanent) Error() string { return fmt.Sprintf("%s: permanent: %v", e.Op, e.Err) }
func (e *Permanent) Unwrap() error { return e.Err }

// NewPermanent wraps err as a Permanent error attributed to op.
func NewPermanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Op: op, Err: err}
}

// Configuration signals a missing/invalid startup dependency (env var,
// unreachable store). It is never caught locally; it surfaces at process
// start and causes a non-zero exit.
type Configuration struct {
	Err error
}

func (e *Configuration) Error() string { return fmt.Sprintf("configuration: %v", e.Err) }
func (e *Configuration) Unwrap() error { return e.Err }

// NewConfiguration wraps err as a Configuration error.
func NewConfiguration(err error) error {
	return &Configuration{Err: err}
}

// ErrShutdown is returned by long-running loops when they observe
// cancellation from the supervisor; it triggers the two-phase shutdown.
var ErrShutdown = fmt.Errorf("shutdown signal received")

// ErrNotFound is returned by the catalog client when an instrument expired
// between listing and a depth fetch; it is not fatal to the caller.
var ErrNotFound = fmt.Errorf("not found")

// ErrCapacityExceeded is returned by the connection pool when a subscribe
// would push a session's channel count past its configured cap.
var ErrCapacityExceeded = fmt.Errorf("capacity exceeded")

// IsTransient reports whether err (or something it wraps) is a Transient error.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// IsPermanent reports whether err (or something it wraps) is a Permanent error.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}
