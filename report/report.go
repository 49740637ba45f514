// Package report renders orchestration results for humans and for
// machines. The JSON projection is the stable interchange form; the
// text projections are for terminals and logs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	quorum "github.com/randalmurphal/quorum"
	"github.com/randalmurphal/quorum/task"
)

// Writer renders orchestration results.
type Writer struct {
	titler cases.Caser
}

// NewWriter creates a report writer.
func NewWriter() *Writer {
	return &Writer{titler: cases.Title(language.English)}
}

// WriteJSON writes the result as indented JSON.
func (w *Writer) WriteJSON(out io.Writer, res *quorum.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteSummary writes a one-screen overview: outcome, strategy,
// consensus and resource usage.
func (w *Writer) WriteSummary(out io.Writer, res *quorum.Result) error {
	w.writeHeader(out, res)

	fmt.Fprintln(out, "\nResponses:")
	for _, resp := range res.Results {
		preview := resp.Result.Content
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		fmt.Fprintf(out, "  %-12s %-8s %.2f  %s\n",
			resp.Provider.Name, resp.Status, resp.Result.Confidence, preview)
	}

	return nil
}

// WriteFull writes the overview plus every provider response in full.
func (w *Writer) WriteFull(out io.Writer, res *quorum.Result) error {
	w.writeHeader(out, res)

	for _, resp := range res.Results {
		w.writeResponse(out, resp)
	}

	decision := res.Decision()
	if decision.Content != "" {
		fmt.Fprintf(out, "\n%s\n\n%s\n", sectionTitle(w.titler, "decision"), decision.Content)
	}

	return nil
}

func (w *Writer) writeHeader(out io.Writer, res *quorum.Result) {
	sep := strings.Repeat("=", 60)

	fmt.Fprintln(out, sep)
	fmt.Fprintf(out, "Task: %s\n", res.TaskID)

	outcome := "failed"
	if res.Success {
		outcome = "succeeded"
	}
	fmt.Fprintf(out, "Strategy: %s | Outcome: %s\n", res.StrategyUsed, outcome)
	if res.Metadata.DegradedMode != "" {
		fmt.Fprintf(out, "Degraded to: %s\n", res.Metadata.DegradedMode)
	}
	if len(res.Metadata.PhaseNames) > 0 {
		fmt.Fprintf(out, "Phases: %s\n", strings.Join(res.Metadata.PhaseNames, " -> "))
	}

	fmt.Fprintf(out, "Duration: %s | Providers: %d | Tokens: %d | Cost: $%.2f\n",
		res.Performance.TotalDuration.Round(time.Millisecond),
		len(res.Results),
		res.Performance.TokensUsed,
		res.Performance.TotalCost)

	if res.Consensus != nil {
		fmt.Fprintf(out, "Consensus: %.2f confidence over %d participants",
			res.Consensus.Confidence, res.Consensus.ParticipantCount)
		if res.Consensus.FaultCount > 0 {
			fmt.Fprintf(out, " (%d faulty)", res.Consensus.FaultCount)
		}
		fmt.Fprintln(out)
		if len(res.Consensus.DissentingProviders) > 0 {
			fmt.Fprintf(out, "Dissenting: %s\n", strings.Join(res.Consensus.DissentingProviders, ", "))
		}
	}
	if res.Validation != nil {
		fmt.Fprintf(out, "Agreement: %.0f%% | Quality: %.2f\n",
			res.Validation.Agreement*100, res.Validation.QualityScore)
	}

	fmt.Fprintln(out, sep)
}

func (w *Writer) writeResponse(out io.Writer, resp task.Response) {
	fmt.Fprintf(out, "\n%s (%s, %.2f confidence, %s)\n",
		sectionTitle(w.titler, resp.Provider.Name),
		resp.Status,
		resp.Result.Confidence,
		resp.Performance.Duration.Round(time.Millisecond))
	fmt.Fprintln(out, strings.Repeat("-", 60))

	if resp.Succeeded() {
		fmt.Fprintln(out, resp.Result.Content)
	} else {
		fmt.Fprintf(out, "failure: %s\n", resp.Result.Reasoning)
	}
	if resp.Result.Reasoning != "" && resp.Succeeded() {
		fmt.Fprintf(out, "\nReasoning: %s\n", resp.Result.Reasoning)
	}
}

func sectionTitle(titler cases.Caser, s string) string {
	return titler.String(strings.ReplaceAll(s, "-", " "))
}
