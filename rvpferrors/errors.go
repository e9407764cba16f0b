// Package rvpferrors defines the externally observable error kinds of the
// point-value processing framework (store, processor, queues). Every kind
// wraps an inner cause and is matched with errors.As, never by string
// comparison.
package rvpferrors

import "fmt"

// ServiceNotAvailableError indicates a peer service was not reachable within
// the caller's timeout. The holder of a failing critical peer restarts.
type ServiceNotAvailableError struct {
	Service string
	Cause   error
}

func (e *ServiceNotAvailableError) Error() string {
	return fmt.Sprintf("service not available: %s: %v", e.Service, e.Cause)
}

func (e *ServiceNotAvailableError) Unwrap() error { return e.Cause }

// NewServiceNotAvailable wraps cause as a ServiceNotAvailableError for service.
func NewServiceNotAvailable(service string, cause error) error {
	return &ServiceNotAvailableError{Service: service, Cause: cause}
}

// BadParameterError indicates a configuration or runtime-supplied value was
// out of range. Setup fails; no partial state persists.
type BadParameterError struct {
	Parameter string
	Reason    string
}

func (e *BadParameterError) Error() string {
	return fmt.Sprintf("bad parameter %q: %s", e.Parameter, e.Reason)
}

// NewBadParameter builds a BadParameterError.
func NewBadParameter(parameter, reason string) error {
	return &BadParameterError{Parameter: parameter, Reason: reason}
}

// StoreAccessError indicates an underlying storage I/O failure. The writer
// aborts the current transaction, releases locks, and returns this error;
// the caller may retry.
type StoreAccessError struct {
	Op    string
	Cause error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("store access failed during %s: %v", e.Op, e.Cause)
}

func (e *StoreAccessError) Unwrap() error { return e.Cause }

// NewStoreAccess wraps cause as a StoreAccessError for op.
func NewStoreAccess(op string, cause error) error {
	return &StoreAccessError{Op: op, Cause: cause}
}

// FormatError indicates a serialized datum violated the wire tag table. The
// affected message is dead-lettered by the caller.
type FormatError struct {
	Detail string
	Cause  error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("format error: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("format error: %s", e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Cause }

// NewFormat builds a FormatError.
func NewFormat(detail string, cause error) error {
	return &FormatError{Detail: detail, Cause: cause}
}

// CancelledError indicates a queue was closed or a timeout elapsed. Callers
// handle it as control flow, not as a failure condition.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string { return "cancelled: " + e.Reason }

// NewCancelled builds a CancelledError.
func NewCancelled(reason string) error {
	return &CancelledError{Reason: reason}
}
