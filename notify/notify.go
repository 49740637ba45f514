package notify

import (
	"context"
	"time"
)

// =============================================================================
// Notification Types
// =============================================================================

// EventType represents the type of orchestration event.
type EventType string

// Event type constants.
const (
	EventOrchestrationStarted   EventType = "orchestration_started"
	EventOrchestrationCompleted EventType = "orchestration_completed"
	EventOrchestrationFailed    EventType = "orchestration_failed"
	EventDispatchStarted        EventType = "dispatch_started"
	EventDispatchCompleted      EventType = "dispatch_completed"
	EventDispatchFailed         EventType = "dispatch_failed"
	EventPhaseCompleted         EventType = "phase_completed"
	EventConsensusReached       EventType = "consensus_reached"
)

// Severity constants for notifications.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes an orchestration event for notification.
type Event struct {
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id"`
	Strategy  string         `json:"strategy,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier receives orchestration lifecycle events. Implementations
// should be non-blocking and handle errors gracefully (log, don't
// crash); the engine never aborts a dispatch over a failed notify.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// =============================================================================
// Context Injection
// =============================================================================

type serviceContextKey string

const notifierServiceKey serviceContextKey = "quorum.notifier"

// WithNotifier adds a Notifier to the context.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierServiceKey, n)
}

// NotifierFromContext extracts the Notifier from context.
// Returns nil if no notifier is configured.
func NotifierFromContext(ctx context.Context) Notifier {
	if n, ok := ctx.Value(notifierServiceKey).(Notifier); ok {
		return n
	}
	return nil
}
