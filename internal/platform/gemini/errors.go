package gemini

import (
	"errors"
	"fmt"
)

// ProtocolError means the oracle answered but the payload violates the
// requested shape: not JSON, wrong fields, or a value outside an allowed
// closed set. Callers discard the result and fall back to a deterministic
// default.
type ProtocolError struct {
	Reason string
	Raw    string
}

func (e *ProtocolError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("oracle protocol error: %s (raw: %s)", e.Reason, e.Raw)
	}
	return fmt.Sprintf("oracle protocol error: %s", e.Reason)
}

// UnavailableError means transport or quota failure after retries. The unit
// of work is surfaced to the orchestrator, never silently skipped.
type UnavailableError struct {
	Status int
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle unavailable (status %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("oracle unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
