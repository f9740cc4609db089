package loader

import (
	"bytes"
	"strings"
	"testing"
)

func TestReport_OK(t *testing.T) {
	r := &Report{Results: []BundleResult{
		{BundleUUID: "a", Outcome: OutcomeSuccess},
		{BundleUUID: "b", Outcome: OutcomeSkipped},
	}}
	if !r.OK() {
		t.Error("all-verified report should be OK")
	}

	r.Results = append(r.Results, BundleResult{BundleUUID: "c", Outcome: OutcomeFailed, Reason: "not found"})
	if r.OK() {
		t.Error("report with a failed bundle should not be OK")
	}
}

func TestReport_IncompleteIsNotOK(t *testing.T) {
	r := &Report{Results: []BundleResult{
		{BundleUUID: "a", Outcome: OutcomeIncomplete, Reason: "context canceled"},
	}}
	if r.OK() {
		t.Error("interrupted run should not be OK")
	}
}

func TestReport_PrintNamesFailedBundles(t *testing.T) {
	r := &Report{Results: []BundleResult{
		{BundleUUID: "aaaa-1", Name: "bundle-one", Outcome: OutcomeSuccess},
		{BundleUUID: "aaaa-2", Name: "bundle-two", Outcome: OutcomeFailed, Reason: "file missing"},
	}}

	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	if !strings.Contains(out, "aaaa-2") || !strings.Contains(out, "file missing") {
		t.Errorf("report does not name the failed bundle:\n%s", out)
	}
	if !strings.Contains(out, "success=1 skipped=0 failed=1 incomplete=0") {
		t.Errorf("unexpected summary line:\n%s", out)
	}
}

func TestFinishedResult(t *testing.T) {
	base := BundleResult{BundleUUID: "a"}

	got := finishedResult(base, &BundleResponse{Skipped: true}, false)
	if got.Outcome != OutcomeSkipped {
		t.Errorf("skipped response mapped to %s", got.Outcome)
	}

	got = finishedResult(base, &BundleResponse{ErrorMessage: "boom"}, false)
	if got.Outcome != OutcomeFailed || got.Reason != "boom" {
		t.Errorf("failed response mapped to %+v", got)
	}

	got = finishedResult(base, &BundleResponse{Status: "verified"}, false)
	if got.Outcome != OutcomeSuccess {
		t.Errorf("verified response mapped to %s", got.Outcome)
	}

	got = finishedResult(base, &BundleResponse{Status: "staged"}, true)
	if got.Outcome != OutcomeSuccess || got.Reason == "" {
		t.Errorf("dry-run response mapped to %+v", got)
	}
}
