package task

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Type classifies the kind of work a task represents.
// The type drives provider selection and model tier choice.
type Type string

const (
	Code         Type = "code"
	Research     Type = "research"
	Analysis     Type = "analysis"
	Creative     Type = "creative"
	Coordination Type = "coordination"
	Hybrid       Type = "hybrid"
)

// Quality levels for task requirements.
type Quality string

const (
	QualityDraft      Quality = "draft"
	QualityProduction Quality = "production"
	QualityEnterprise Quality = "enterprise"
)

// Speed preferences for task requirements.
type Speed string

const (
	SpeedFast     Speed = "fast"
	SpeedBalanced Speed = "balanced"
	SpeedThorough Speed = "thorough"
)

// Requirements expresses quality expectations for a task.
// Creativity and Accuracy are in [0,1].
type Requirements struct {
	Quality    Quality `json:"quality,omitempty"`
	Speed      Speed   `json:"speed,omitempty"`
	Creativity float64 `json:"creativity,omitempty"`
	Accuracy   float64 `json:"accuracy,omitempty"`
}

// Constraints bounds a single task execution.
type Constraints struct {
	MaxTokens   int           `json:"maxTokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	CostCeiling float64       `json:"costCeiling,omitempty"`
}

// Request describes one unit of work to dispatch to providers.
// A Request is immutable once dispatched; derived requests (for
// sequential phases) are copies with a suffixed ID and new Context.
type Request struct {
	ID           string            `json:"id"`
	Type         Type              `json:"type"`
	Description  string            `json:"description"`
	Context      string            `json:"context,omitempty"`
	Requirements *Requirements     `json:"requirements,omitempty"`
	Constraints  *Constraints      `json:"constraints,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewRequest creates a Request with a generated ID.
func NewRequest(taskType Type, description string) Request {
	return Request{
		ID:          generateTaskID(),
		Type:        taskType,
		Description: description,
	}
}

// WithRequirements returns a copy with requirements set.
func (r Request) WithRequirements(req Requirements) Request {
	r.Requirements = &req
	return r
}

// WithConstraints returns a copy with constraints set.
func (r Request) WithConstraints(c Constraints) Request {
	r.Constraints = &c
	return r
}

// WithMetadata returns a copy with a metadata key set.
func (r Request) WithMetadata(key, value string) Request {
	meta := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}

// Derive returns a copy of the request for a named phase. The ID is
// suffixed with the phase name and the accumulated context replaces
// any existing context.
func (r Request) Derive(phase, description, context string) Request {
	derived := r
	derived.ID = fmt.Sprintf("%s-%s", r.ID, phase)
	if description != "" {
		derived.Description = description
	}
	derived.Context = context
	return derived
}

// Timeout returns the per-call timeout, or def when unset.
func (r Request) Timeout(def time.Duration) time.Duration {
	if r.Constraints != nil && r.Constraints.Timeout > 0 {
		return r.Constraints.Timeout
	}
	return def
}

// Meta returns a metadata value, or "" when absent.
func (r Request) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// Status is the terminal outcome of one adapter invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial"
)

// Result carries the substantive answer from a provider.
type Result struct {
	Content      string            `json:"content"`
	Confidence   float64           `json:"confidence"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Alternatives []string          `json:"alternatives,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Performance records resource usage for one invocation.
type Performance struct {
	Duration   time.Duration `json:"duration"`
	TokensUsed int           `json:"tokensUsed"`
	Cost       float64       `json:"cost"`
	Model      string        `json:"model,omitempty"`
}

// ProviderInfo identifies the provider that produced a response.
type ProviderInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Response is what every adapter invocation yields, exactly once.
// Adapters never raise past their boundary: internal failures become
// a StatusFailure response with the reason in Result.Reasoning.
type Response struct {
	ID          string       `json:"id"`
	Status      Status       `json:"status"`
	Result      Result       `json:"result"`
	Performance Performance  `json:"performance"`
	Provider    ProviderInfo `json:"provider"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Succeeded reports whether the response carries a usable result.
func (r Response) Succeeded() bool {
	return r.Status == StatusSuccess
}

// FailureResponse builds the terminal failure response adapters and
// the engine use when a call errors, times out, or panics.
func FailureResponse(id, provider, reason string, elapsed time.Duration) Response {
	return Response{
		ID:     id,
		Status: StatusFailure,
		Result: Result{
			Confidence: 0,
			Reasoning:  reason,
		},
		Performance: Performance{Duration: elapsed},
		Provider:    ProviderInfo{Name: provider},
		Timestamp:   time.Now(),
	}
}

func generateTaskID() string {
	id, err := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 12)
	if err != nil {
		// nanoid only fails if the RNG does; fall back to a timestamp
		return fmt.Sprintf("task-%d", time.Now().UnixNano())
	}
	return "task-" + id
}
