package core

import (
	"fmt"
	"time"
)

// OutcomeKind classifies how an engine invocation terminated. Each failure
// cause gets its own kind so diagnostics never conflate "engine was slow"
// with "engine rejected our credentials".
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeTimeout     OutcomeKind = "timeout"
	OutcomeNetworkErr  OutcomeKind = "network_error"
	OutcomeHTTPError   OutcomeKind = "http_error"
	OutcomeAuthError   OutcomeKind = "auth_error"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeParseError  OutcomeKind = "parse_error"
	OutcomeSuspended   OutcomeKind = "suspended"
	OutcomeException   OutcomeKind = "exception"
)

// Retryable reports whether failures of this kind may be retried within the
// same query. Only transient network failures qualify; auth and rate-limit
// failures would fail again, and timeouts already consumed the budget.
func (k OutcomeKind) Retryable() bool {
	return k == OutcomeNetworkErr
}

// Failure reports whether the kind represents anything other than success.
func (k OutcomeKind) Failure() bool {
	return k != OutcomeSuccess
}

// EngineOutcome is the terminal status of one engine invocation. The
// processor creates exactly one outcome per invocation; the dispatcher uses
// it for bookkeeping and the merger records failures as user-visible
// diagnostics.
type EngineOutcome struct {
	Engine string
	Kind   OutcomeKind

	// Records are the normalized results, only set on success.
	Records []ResultRecord

	// Err carries the underlying failure for logging. Nil on success.
	Err error

	// HTTPStatus is set for http_error, auth_error and rate_limited kinds.
	HTTPStatus int

	// SuspendedUntil is set when the circuit breaker short-circuited the
	// invocation.
	SuspendedUntil time.Time

	// Elapsed is how long the invocation took, including retries.
	Elapsed time.Duration

	// Attempts counts adapter invocations, 0 when suspended.
	Attempts int
}

// Message renders a short user-visible diagnostic for failed outcomes.
func (o EngineOutcome) Message() string {
	switch o.Kind {
	case OutcomeSuccess:
		return ""
	case OutcomeHTTPError, OutcomeAuthError, OutcomeRateLimited:
		return fmt.Sprintf("upstream returned HTTP %d", o.HTTPStatus)
	case OutcomeSuspended:
		return fmt.Sprintf("suspended until %s", o.SuspendedUntil.Format(time.RFC3339))
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return string(o.Kind)
	}
}

// StatusError is returned by engine adapters when the upstream answered with
// a non-2xx status. The processor maps it onto the outcome taxonomy.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}

// PayloadError is returned by engine adapters when the upstream response
// could not be decoded or had an unexpected shape.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
