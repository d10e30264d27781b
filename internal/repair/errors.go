package repair

import (
	"fmt"
	"strings"
)

// LLMError marks a failed or malformed collaborator call: the
// tick aborts; the caller is expected to retry the tick once before it
// counts against rewrite_rounds_left.
type LLMError struct {
	Op      string
	Err     error
	Message string
}

func (e *LLMError) Error() string { return e.Message }
func (e *LLMError) Unwrap() error { return e.Err }

// BudgetExhausted is the clean, non-fatal terminal signal when any of
// State.Budget's three counters reaches zero without success.
type BudgetExhausted struct {
	Message string
}

func (e *BudgetExhausted) Error() string { return e.Message }

// InvariantViolation marks a broken internal contract — a state the
// driver should never be able to reach. Fatal; the orchestrator exits with
// code 5.
type InvariantViolation struct {
	Op      string
	Message string
}

func (e *InvariantViolation) Error() string { return e.Message }

// FormatUserError renders any of this package's errors for the
// orchestrator's terminal failure report, the same shape as
// container.InfraError.FormatUserError.
func FormatUserError(err error) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", err.Error()))
	if u, ok := err.(interface{ Unwrap() error }); ok {
		if inner := u.Unwrap(); inner != nil {
			sb.WriteString(fmt.Sprintf("  Details: %s\n", inner.Error()))
		}
	}
	return sb.String()
}
