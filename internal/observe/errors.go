package observe

import (
	"fmt"
	"time"
)

// ValidationError rejects bad input before any external call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// RateLimitError reports a sliding-window limit breach.
type RateLimitError struct {
	Limit  int
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Window)
}

// BudgetExceededError reports that the projected monthly cost would pass the
// caller's configured limit. Raised before the external model call.
type BudgetExceededError struct {
	LimitUSD     float64
	ProjectedUSD float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("monthly budget exceeded: projected $%.4f over limit $%.2f", e.ProjectedUSD, e.LimitUSD)
}

// ServiceErrorKind distinguishes why the external model call failed.
type ServiceErrorKind string

const (
	ServiceAuth        ServiceErrorKind = "auth"
	ServiceRateLimited ServiceErrorKind = "rate_limit"
	ServiceUnavailable ServiceErrorKind = "unavailable"
)

// ExternalServiceError wraps a failed external model call with a
// caller-distinguishable kind.
type ExternalServiceError struct {
	Kind    ServiceErrorKind
	Message string
}

func (e *ExternalServiceError) Error() string {
	switch e.Kind {
	case ServiceAuth:
		return fmt.Sprintf("analysis service authentication failed: %s", e.Message)
	case ServiceRateLimited:
		return fmt.Sprintf("analysis service is rate limiting requests: %s", e.Message)
	default:
		return fmt.Sprintf("analysis service unavailable: %s", e.Message)
	}
}

// ObservationError wraps unexpected failures during parsing, synthesis, or
// persistence.
type ObservationError struct {
	Stage string
	Err   error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observation failed at %s: %v", e.Stage, e.Err)
}

func (e *ObservationError) Unwrap() error {
	return e.Err
}
