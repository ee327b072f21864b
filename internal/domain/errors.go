package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Per-ticker conditions (data unavailable, rate limited,
// invalid DCF assumptions) are absorbed at the lowest layer that can exclude
// the ticker or field; structural conditions (constraint, invariant,
// persistence) propagate to the caller as typed failures.
var (
	// ErrDataUnavailable marks a ticker or field that could not be fetched.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrRateLimited marks transient provider throttling. The fetch
	// scheduler retries it with backoff before degrading it to
	// ErrDataUnavailable.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound marks an unknown ticker at the provider.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAssumption marks a DCF input set that cannot produce a
	// finite valuation (missing mandatory inputs, or discount rate not
	// above terminal growth).
	ErrInvalidAssumption = errors.New("invalid valuation assumption")

	// ErrConstraintUnsatisfiable marks a selection that could not fill the
	// requested slots without breaking a sector cap.
	ErrConstraintUnsatisfiable = errors.New("selection constraints unsatisfiable")

	// ErrPersistenceConflict marks a concurrent mutation detected by the
	// store. The review cycle is safely retryable from scratch.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrUnknownStrategy marks a strategy name with no configured weights.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// InvariantViolationError names the portfolio invariant a proposed trade plan
// would break. A rejected plan is all-or-nothing: nothing is written.
type InvariantViolationError struct {
	Invariant string // e.g. "max_sector_pct", "max_position_pct"
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s (%s)", e.Invariant, e.Detail)
}

// IsInvariantViolation reports whether err wraps an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}
