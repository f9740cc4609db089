package loader

import (
	"fmt"
	"io"
)

// Outcome classifies what happened to one bundle during a run.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeIncomplete Outcome = "incomplete"
)

// BundleResult is one bundle's final outcome and, when it did not succeed,
// the reason.
type BundleResult struct {
	BundleUUID string
	Name       string
	Outcome    Outcome
	Reason     string
}

// Report aggregates per-bundle outcomes for the whole run.
type Report struct {
	DryRun  bool
	Results []BundleResult
}

// OK reports whether the process should exit zero: every bundle verified, or
// was verified by an earlier run.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed || res.Outcome == OutcomeIncomplete {
			return false
		}
	}
	return true
}

// Counts returns the number of bundles per outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Print writes the human-readable run summary.
func (r *Report) Print(w io.Writer) {
	mode := ""
	if r.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(w, "loaded %d bundles%s\n", len(r.Results), mode)

	for _, res := range r.Results {
		name := res.Name
		if name == "" {
			name = "-"
		}
		if res.Reason != "" {
			fmt.Fprintf(w, "  %-10s %s  %s  (%s)\n", res.Outcome, res.BundleUUID, name, res.Reason)
		} else {
			fmt.Fprintf(w, "  %-10s %s  %s\n", res.Outcome, res.BundleUUID, name)
		}
	}

	counts := r.Counts()
	fmt.Fprintf(w, "success=%d skipped=%d failed=%d incomplete=%d\n",
		counts[OutcomeSuccess], counts[OutcomeSkipped], counts[OutcomeFailed], counts[OutcomeIncomplete])
}
