package billing

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("not found")

// ConfigurationError indicates the engine cannot price work at all, e.g. no
// applicable rate slab and no fallback slab. It is fatal for the operation.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// InvalidStateError indicates an operation was attempted on an entity that is
// not in the required source state. The caller should re-fetch and decide.
type InvalidStateError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s, expected %s", e.Entity, e.ID, e.Actual, e.Expected)
}

// InvalidTransitionError indicates an illegal state-machine edge was
// attempted. It is always logged as an anomaly and never silently coerced.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s on %s %s", e.From, e.To, e.Entity, e.ID)
}

// ConflictError indicates an idempotent write observed a contradictory prior
// value, e.g. the same invoice marked paid with two different references.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Entity, e.ID, e.Reason)
}

// SignatureVerificationError indicates a webhook or client confirmation
// signature mismatch. The request is rejected with no state mutated.
type SignatureVerificationError struct {
	Source string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed for %s", e.Source)
}

// GatewayUnavailableError indicates an adapter call to the external payment
// provider failed or timed out. The engine does not auto-retry; the caller
// owns retry policy.
type GatewayUnavailableError struct {
	Gateway string
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("gateway %s unavailable: %v", e.Gateway, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}
