package market

import (
	"context"
	"errors"
	"fmt"
)

// ConfigError is a malformed or unsupported setting. Raised before any
// network access and always fatal.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// ConnectivityError wraps a transport failure for one venue operation.
type ConnectivityError struct {
	Venue string
	Op    string
	Err   error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ComputationError is an invalid numeric result for one relation. It is
// logged and swallowed at the calculator boundary.
type ComputationError struct {
	Relation string
	Err      error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("relation %s: %v", e.Relation, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// ErrNonFinite is the cause attached to computations producing NaN or Inf.
var ErrNonFinite = errors.New("non-finite result")

// IsCanceled reports whether err is the expected outcome of a shutdown.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
