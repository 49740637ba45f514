package metering

import (
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/quorum/task"
)

// ErrLimitExceeded is the sentinel every limit violation unwraps to.
var ErrLimitExceeded = errors.New("limit exceeded")

// LimitError reports which configured limit a dispatch would violate.
// It is raised before any provider call is made.
type LimitError struct {
	// Limit names the violated limit ("calls", "tokens", "cost").
	Limit string

	// Ceiling is the configured maximum.
	Ceiling float64

	// Used is the amount already consumed.
	Used float64
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %.2f of %.2f used", e.Limit, e.Used, e.Ceiling)
}

// Unwrap returns ErrLimitExceeded.
func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}

// Guard is consulted by the engine before dispatching a task. A nil
// error admits the dispatch; a *LimitError blocks it.
type Guard interface {
	// Check admits or rejects a dispatch before any provider call.
	Check(req task.Request) error

	// Record folds actual usage back into the guard after a dispatch.
	Record(tokens int, cost float64)

	// Release refunds an admitted dispatch that ended without
	// producing a result, so failed plans do not consume budget.
	Release()
}

// Budget is a Guard with fixed ceilings per engine lifetime.
// The zero value of any ceiling disables that limit.
type Budget struct {
	MaxCalls  int
	MaxTokens int
	MaxCost   float64

	mu     sync.Mutex
	calls  int
	tokens int
	cost   float64
}

// NewBudget creates a budget guard.
func NewBudget(maxCalls, maxTokens int, maxCost float64) *Budget {
	return &Budget{
		MaxCalls:  maxCalls,
		MaxTokens: maxTokens,
		MaxCost:   maxCost,
	}
}

// Check implements Guard.
func (b *Budget) Check(req task.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.MaxCalls > 0 && b.calls >= b.MaxCalls {
		return &LimitError{Limit: "calls", Ceiling: float64(b.MaxCalls), Used: float64(b.calls)}
	}
	if b.MaxTokens > 0 && b.tokens >= b.MaxTokens {
		return &LimitError{Limit: "tokens", Ceiling: float64(b.MaxTokens), Used: float64(b.tokens)}
	}
	if b.MaxCost > 0 && b.cost >= b.MaxCost {
		return &LimitError{Limit: "cost", Ceiling: b.MaxCost, Used: b.cost}
	}
	if req.Constraints != nil && req.Constraints.CostCeiling > 0 && b.MaxCost > 0 {
		if b.cost+req.Constraints.CostCeiling > b.MaxCost {
			return &LimitError{Limit: "cost", Ceiling: b.MaxCost, Used: b.cost + req.Constraints.CostCeiling}
		}
	}

	b.calls++
	return nil
}

// Release implements Guard.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls > 0 {
		b.calls--
	}
}

// Record implements Guard.
func (b *Budget) Record(tokens int, cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += tokens
	b.cost += cost
}

// Usage returns the consumed calls, tokens and cost so far.
func (b *Budget) Usage() (calls, tokens int, cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.tokens, b.cost
}
