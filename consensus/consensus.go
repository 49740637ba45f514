package consensus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/randalmurphal/quorum/task"
)

// Mode selects the algorithm used to reconcile provider responses.
type Mode string

const (
	Majority  Mode = "majority"
	Byzantine Mode = "byzantine"
	Raft      Mode = "raft"
)

// DefaultFaultTolerance is the fraction of participants assumed
// faulty under byzantine evaluation.
const DefaultFaultTolerance = 0.33

// Evaluation errors.
var (
	// ErrNoResponses indicates an empty response set.
	ErrNoResponses = errors.New("no responses to evaluate")

	// ErrUnknownMode indicates an unrecognized consensus mode.
	ErrUnknownMode = errors.New("unknown consensus mode")
)

// Result is the reconciled decision over one response set.
type Result struct {
	// Decision is the chosen answer. With zero successful responses
	// it echoes the first response's result with Confidence 0, which
	// callers must read as "no usable answer", not an error.
	Decision task.Result `json:"decision"`

	// Confidence in [0,1], computed per mode.
	Confidence float64 `json:"confidence"`

	// ParticipantCount is the size of the response set.
	ParticipantCount int `json:"participantCount"`

	// Elapsed is how long evaluation took.
	Elapsed time.Duration `json:"elapsed"`

	// DissentingProviders are providers whose responses failed.
	DissentingProviders []string `json:"dissentingProviders,omitempty"`

	// FaultCount is the number of responses treated as faulty.
	FaultCount int `json:"faultCount"`
}

// Evaluator computes consensus over provider responses. The zero
// value evaluates with DefaultFaultTolerance. Evaluation is pure:
// the same response set always yields the identical Result (modulo
// Elapsed), so re-running it is safe.
type Evaluator struct {
	// FaultTolerance is the assumed faulty fraction for byzantine
	// mode. Zero means DefaultFaultTolerance.
	FaultTolerance float64
}

func (e Evaluator) faultTolerance() float64 {
	if e.FaultTolerance == 0 {
		return DefaultFaultTolerance
	}
	return e.FaultTolerance
}

// Evaluate reconciles the responses under the given mode.
func (e Evaluator) Evaluate(mode Mode, responses []task.Response) (Result, error) {
	start := time.Now()
	total := len(responses)
	if total == 0 {
		return Result{}, ErrNoResponses
	}

	successes := 0
	var dissenting []string
	for _, r := range responses {
		if r.Succeeded() {
			successes++
		} else {
			dissenting = append(dissenting, r.Provider.Name)
		}
	}

	res := Result{
		Decision:            pickDecision(responses),
		ParticipantCount:    total,
		DissentingProviders: dissenting,
	}

	switch mode {
	case Majority:
		res.Confidence = float64(successes) / float64(total)

	case Byzantine:
		f := int(math.Floor(float64(total) * e.faultTolerance()))
		if successes >= total-f {
			res.Confidence = float64(successes) / float64(total)
		} else {
			// Degraded but not zero: insufficient evidence to fully
			// trust the decision.
			res.Confidence = 0.5
		}
		res.FaultCount = total - successes

	case Raft:
		majority := total/2 + 1
		if successes >= majority {
			res.Confidence = 1.0
		} else {
			res.Confidence = float64(successes) / float64(total)
		}

	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	if successes == 0 {
		res.Confidence = 0
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// pickDecision applies the cross-mode tie-break: the successful
// response with the numerically highest self-reported confidence,
// ties broken by arrival order. With no successes, the first
// response's result stands in (confidence forced to 0 above).
func pickDecision(responses []task.Response) task.Result {
	best := -1
	for i, r := range responses {
		if !r.Succeeded() {
			continue
		}
		if best < 0 || r.Result.Confidence > responses[best].Result.Confidence {
			best = i
		}
	}
	if best < 0 {
		return responses[0].Result
	}
	return responses[best].Result
}
