package quorum

import (
	"time"

	"github.com/randalmurphal/quorum/consensus"
	"github.com/randalmurphal/quorum/task"
)

// AggregatePerformance sums resource usage over all provider calls
// of one orchestration.
type AggregatePerformance struct {
	TotalDuration time.Duration `json:"totalDuration"`
	ProvidersUsed []string      `json:"providersUsed"`
	TokensUsed    int           `json:"tokensUsed"`
	TotalCost     float64       `json:"totalCost"`
}

// Validation captures cross-provider agreement when more than one
// provider answered.
type Validation struct {
	// Agreement is the fraction of providers that succeeded.
	Agreement float64 `json:"agreement"`

	// QualityScore is the mean self-reported confidence of the
	// successful responses.
	QualityScore float64 `json:"qualityScore"`
}

// ResultMetadata carries orchestration bookkeeping for the caller.
type ResultMetadata struct {
	// PhaseNames lists executed phases, in plan order.
	PhaseNames []string `json:"phaseNames,omitempty"`

	// MemoryUsed reports whether the result was handed to the
	// memory store.
	MemoryUsed bool `json:"memoryUsed"`

	// DegradedMode names a structural fallback the engine took,
	// e.g. hierarchical dispatch without a coordinator.
	DegradedMode string `json:"degradedMode,omitempty"`
}

// Result is the terminal, immutable outcome of one orchestration.
// Results holds every provider response received, in completion
// order for parallel dispatch and plan order for sequential.
type Result struct {
	TaskID       string               `json:"taskId"`
	Success      bool                 `json:"success"`
	Results      []task.Response      `json:"results"`
	StrategyUsed Approach             `json:"strategyUsed"`
	Performance  AggregatePerformance `json:"performance"`
	Consensus    *consensus.Result    `json:"consensus,omitempty"`
	Validation   *Validation          `json:"validation,omitempty"`
	Metadata     ResultMetadata       `json:"metadata"`
}

// Decision returns the reconciled answer: the consensus decision when
// one was computed, otherwise the best single response's result.
func (r *Result) Decision() task.Result {
	if r.Consensus != nil {
		return r.Consensus.Decision
	}
	best := -1
	for i, resp := range r.Results {
		if !resp.Succeeded() {
			continue
		}
		if best < 0 || resp.Result.Confidence > r.Results[best].Result.Confidence {
			best = i
		}
	}
	if best < 0 {
		if len(r.Results) > 0 {
			return r.Results[0].Result
		}
		return task.Result{}
	}
	return r.Results[best].Result
}
