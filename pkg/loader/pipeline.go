package loader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/superfly/fsm"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// Pipeline runs a set of manifests through the submission FSM, each bundle
// independently: one bundle's failure never aborts the others.
type Pipeline struct {
	Manager *fsm.Manager
	Machine *Machine
	DryRun  bool
}

// Run drives every manifest to a terminal state and aggregates the outcomes.
// Rejected inputs are reported as failed without any network call.
func (p *Pipeline) Run(ctx context.Context, manifests []*bundle.Manifest, rejected []bundle.Rejected) (*Report, error) {
	start, _, err := p.Machine.Register(ctx, p.Manager)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: p.DryRun}
	for _, rej := range rejected {
		report.Results = append(report.Results, BundleResult{
			BundleUUID: rej.ID,
			Outcome:    OutcomeFailed,
			Reason:     rej.Err.Error(),
		})
	}

	results := make([]BundleResult, len(manifests))
	var wg sync.WaitGroup
	for i, manifest := range manifests {
		result := BundleResult{BundleUUID: manifest.UUID, Name: manifest.Name}

		// Zero-file and duplicate-entry bundles never reach the resolver.
		if err := manifest.Validate(); err != nil {
			result.Outcome = OutcomeFailed
			result.Reason = err.Error()
			results[i] = result
			continue
		}

		p.Machine.Add(manifest)
		req := &BundleRequest{BundleUUID: manifest.UUID}
		resp := &BundleResponse{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			version, err := start(ctx, manifest.UUID, fsm.NewRequest(req, resp))
			if err != nil {
				results[i] = failedResult(result, resp, errors.Wrap(err, "FSM start failed"))
				return
			}
			slog.Info("bundle_fsm_started", "bundle_uuid", manifest.UUID, "version", version)

			if err := p.Manager.Wait(ctx, version); err != nil {
				if ctx.Err() != nil {
					result.Outcome = OutcomeIncomplete
					result.Reason = ctx.Err().Error()
					results[i] = result
					return
				}
				results[i] = failedResult(result, resp, err)
				return
			}
			results[i] = finishedResult(result, resp, p.DryRun)
		}()
	}
	wg.Wait()

	report.Results = append(report.Results, results...)
	return report, nil
}

func failedResult(result BundleResult, resp *BundleResponse, err error) BundleResult {
	result.Outcome = OutcomeFailed
	result.Reason = resp.ErrorMessage
	if result.Reason == "" {
		result.Reason = err.Error()
	}
	return result
}

func finishedResult(result BundleResult, resp *BundleResponse, dryRun bool) BundleResult {
	switch {
	case resp.Skipped:
		result.Outcome = OutcomeSkipped
		result.Reason = "already verified with identical file set"
	case resp.ErrorMessage != "":
		result.Outcome = OutcomeFailed
		result.Reason = resp.ErrorMessage
	default:
		result.Outcome = OutcomeSuccess
		if dryRun {
			result.Reason = "dry-run: staged checks only"
		}
	}
	return result
}
