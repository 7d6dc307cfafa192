package domain

import (
	"errors"
	"fmt"
)

// ErrDataGap signals insufficient history for an indicator window. Callers
// recover locally by skipping the symbol/day.
var ErrDataGap = errors.New("insufficient history")

// ErrNoCache signals a fetch failure with no usable local cache to fall back
// on. Surfaced to the caller.
var ErrNoCache = errors.New("no cached bars available")

// ConfigError is a fatal start-of-run configuration mistake: unknown preset,
// unsupported weight method, invalid date range.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// InvariantViolation indicates a defect: non-monotone panel, negative cash,
// weights summing above 1+eps. Always fatal for the run.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

// FetchError is a transient network/backend failure. RateLimited marks
// upstream throttling that exhausted the retry budget.
type FetchError struct {
	Source      string
	Symbol      string
	RateLimited bool
	Err         error
}

func (e *FetchError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("fetch %s/%s: rate limited: %v", e.Source, e.Symbol, e.Err)
	}
	return fmt.Sprintf("fetch %s/%s: %v", e.Source, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
