package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/superfly/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/datastore"
	"github.com/commons-dss/bundle-loader/pkg/db"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

func (m *Machine) checkRetries(ctx context.Context, uuid string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "bundle_uuid", uuid, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// failBundle records a bundle failure in the manifest, the response, and the
// ledger. Ledger write errors are logged, not surfaced; the original failure
// is what the caller reports.
func (m *Machine) failBundle(resp *BundleResponse, manifest *bundle.Manifest, err error) {
	if errors.IsFatalForBundle(err) {
		slog.Error("bundle_fatal", "bundle_uuid", manifest.UUID, "error", err)
	}
	manifest.Fail()
	resp.Status = db.StatusFailed
	resp.ErrorMessage = err.Error()
	if resp.RecordID != 0 && !m.dryRun {
		if lerr := m.ledger.UpdateStatus(resp.RecordID, db.StatusFailed, err.Error()); lerr != nil {
			slog.Error("ledger_failure_record_failed", "record_id", resp.RecordID, "error", lerr)
		}
	}
}

// handleCheckLedger consults the run ledger for an earlier outcome
// (idempotency across runs)
func (m *Machine) handleCheckLedger(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	slog.Info("fsm_state_check_ledger", "bundle_uuid", req.Msg.BundleUUID)

	if err := m.checkRetries(ctx, req.Msg.BundleUUID); err != nil {
		return nil, err
	}

	manifest := m.manifest(req.Msg.BundleUUID)
	if manifest == nil {
		return nil, fsm.Abort(fmt.Errorf("no manifest registered for bundle %s", req.Msg.BundleUUID))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &BundleResponse{}
	}

	rec, err := m.ledger.GetByUUID(req.Msg.BundleUUID)
	if err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "ledger check failed"))
	}

	hash := manifest.FilesetHash()
	if rec != nil {
		resp.RecordID = rec.ID
		if rec.Status == db.StatusVerified && rec.FilesetSHA == hash {
			slog.Info("bundle_already_verified",
				"bundle_uuid", req.Msg.BundleUUID, "record_id", rec.ID)
			resp.Skipped = true
			resp.Status = db.StatusVerified
			return fsm.NewResponse(resp), nil
		}
		slog.Info("bundle_found_continue_processing",
			"bundle_uuid", req.Msg.BundleUUID, "record_id", rec.ID, "status", rec.Status)
		if !m.dryRun {
			rec.FilesetSHA = hash
			rec.Status = db.StatusDraft
			rec.ErrorMessage = ""
			if err := m.ledger.Update(rec); err != nil {
				return nil, fsm.Abort(errors.Wrap(err, "failed to reset bundle record"))
			}
		}
	} else if !m.dryRun {
		rec = &db.Record{
			BundleUUID: req.Msg.BundleUUID,
			Name:       manifest.Name,
			FilesetSHA: hash,
			Status:     db.StatusDraft,
		}
		if err := m.ledger.Create(rec); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to create bundle record"))
		}
		resp.RecordID = rec.ID
	}

	return fsm.NewResponse(resp), nil
}

// handleResolve resolves checksum/size/content-type for every file in the
// bundle, fanning out under the shared in-flight cap.
func (m *Machine) handleResolve(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	slog.Info("fsm_state_resolve", "bundle_uuid", req.Msg.BundleUUID)

	if err := m.checkRetries(ctx, req.Msg.BundleUUID); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped {
		return fsm.NewResponse(resp), nil
	}

	manifest := m.manifest(req.Msg.BundleUUID)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range manifest.Entries {
		g.Go(func() error {
			if err := m.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.sem.Release(1)

			md, err := m.resolver.Resolve(gctx, e.Ref())
			if err != nil {
				return errors.Wrapf(err, "file %s", e.UUID)
			}
			e.Metadata = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("resolve_failed", "bundle_uuid", req.Msg.BundleUUID, "error", err)
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	if err := manifest.CheckResolved(); err != nil {
		slog.Error("resolve_validation_failed", "bundle_uuid", req.Msg.BundleUUID, "error", err)
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	resp.FilesResolved = len(manifest.Entries)
	slog.Info("resolve_complete", "bundle_uuid", req.Msg.BundleUUID, "files", resp.FilesResolved)
	return fsm.NewResponse(resp), nil
}

// handleStage stages every file's bytes into the staging bucket, deduplicated
// by content checksum.
func (m *Machine) handleStage(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	slog.Info("fsm_state_stage", "bundle_uuid", req.Msg.BundleUUID)

	if err := m.checkRetries(ctx, req.Msg.BundleUUID); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped {
		return fsm.NewResponse(resp), nil
	}

	manifest := m.manifest(req.Msg.BundleUUID)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range manifest.Entries {
		g.Go(func() error {
			if err := m.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.sem.Release(1)

			staged, err := m.stager.Stage(gctx, e.Metadata)
			if err != nil {
				return errors.Wrapf(err, "file %s", e.UUID)
			}
			e.Staged = staged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("stage_failed", "bundle_uuid", req.Msg.BundleUUID, "error", err)
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	if err := manifest.Advance(bundle.StatusStaged); err != nil {
		return nil, fsm.Abort(err)
	}
	if resp.RecordID != 0 && !m.dryRun {
		if err := m.ledger.UpdateStatus(resp.RecordID, db.StatusStaged, ""); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
		}
	}

	resp.FilesStaged = len(manifest.Entries)
	slog.Info("stage_complete", "bundle_uuid", req.Msg.BundleUUID, "files", resp.FilesStaged)
	return fsm.NewResponse(resp), nil
}

// handleSubmit creates the bundle in the Data Store. Dry-run short-circuits
// here: everything before this state is read-only against the world.
func (m *Machine) handleSubmit(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	slog.Info("fsm_state_submit", "bundle_uuid", req.Msg.BundleUUID)

	if err := m.checkRetries(ctx, req.Msg.BundleUUID); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped {
		return fsm.NewResponse(resp), nil
	}
	if m.dryRun {
		slog.Info("submit_skipped_dry_run", "bundle_uuid", req.Msg.BundleUUID)
		resp.Status = db.StatusStaged
		return fsm.NewResponse(resp), nil
	}

	manifest := m.manifest(req.Msg.BundleUUID)
	stored, err := datastore.Build(manifest)
	if err != nil {
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	if err := m.store.Submit(ctx, stored); err != nil {
		slog.Error("submit_failed", "bundle_uuid", req.Msg.BundleUUID, "error", err)
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	if err := manifest.Advance(bundle.StatusSubmitted); err != nil {
		return nil, fsm.Abort(err)
	}
	m.mu.Lock()
	m.stored[manifest.UUID] = stored
	m.mu.Unlock()
	if resp.RecordID != 0 {
		if err := m.ledger.UpdateStatus(resp.RecordID, db.StatusSubmitted, ""); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleVerify reads the stored bundle back and compares it to what was
// submitted.
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	slog.Info("fsm_state_verify", "bundle_uuid", req.Msg.BundleUUID)

	if err := m.checkRetries(ctx, req.Msg.BundleUUID); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped || m.dryRun {
		return fsm.NewResponse(resp), nil
	}

	manifest := m.manifest(req.Msg.BundleUUID)
	m.mu.Lock()
	stored := m.stored[manifest.UUID]
	m.mu.Unlock()
	if stored == nil {
		return nil, fsm.Abort(fmt.Errorf("bundle %s reached verify without a submission", manifest.UUID))
	}

	if err := m.store.Verify(ctx, stored); err != nil {
		slog.Error("verify_failed", "bundle_uuid", req.Msg.BundleUUID, "error", err)
		m.failBundle(resp, manifest, err)
		return nil, fsm.Abort(err)
	}

	if err := manifest.Advance(bundle.StatusVerified); err != nil {
		return nil, fsm.Abort(err)
	}
	if resp.RecordID != 0 {
		if err := m.ledger.UpdateStatus(resp.RecordID, db.StatusVerified, ""); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to update status"))
		}
	}
	resp.Status = db.StatusVerified

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the FSM as complete
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[BundleRequest, BundleResponse]) (*fsm.Response[BundleResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		resp = &BundleResponse{}
	}
	if resp.Status == "" {
		resp.Status = db.StatusVerified
	}

	slog.Info("fsm_complete", "bundle_uuid", req.Msg.BundleUUID,
		"status", resp.Status, "skipped", resp.Skipped)
	return fsm.NewResponse(resp), nil
}
