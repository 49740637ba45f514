package quorum

// Approach is the dispatch strategy an assessment recommends.
type Approach string

const (
	SingleProvider Approach = "single-provider"
	Parallel       Approach = "parallel"
	Sequential     Approach = "sequential"
	Hierarchical   Approach = "hierarchical"
)

// Recommendation ranks one provider for a task.
type Recommendation struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Phase is one step of a sequential plan, bound to one provider.
type Phase struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description,omitempty"`
}

// Assessment is the upstream task-assessment output: a ranked
// provider list plus an optional phase plan. The engine treats it as
// a read-only plan produced by a black box; it never second-guesses
// the ranking, only validates the approach.
type Assessment struct {
	Approach        Approach         `json:"approach"`
	Recommendations []Recommendation `json:"recommendations"`
	Phases          []Phase          `json:"phases,omitempty"`
}

// Providers returns the recommended provider names in rank order.
func (a Assessment) Providers() []string {
	names := make([]string, len(a.Recommendations))
	for i, rec := range a.Recommendations {
		names[i] = rec.Provider
	}
	return names
}
