package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/commons-dss/bundle-loader/internal/config"
	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/cloud"
	"github.com/commons-dss/bundle-loader/pkg/datastore"
	"github.com/commons-dss/bundle-loader/pkg/db"
	"github.com/commons-dss/bundle-loader/pkg/errors"
	"github.com/commons-dss/bundle-loader/pkg/loader"
	"github.com/commons-dss/bundle-loader/pkg/metadata"
	"github.com/commons-dss/bundle-loader/pkg/staging"
)

var loadCmd = &cobra.Command{
	Use:   "load <input.json>",
	Short: "Load standard-format bundles into the Data Store",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.LedgerPath, cfg.FSMDBPath); err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to read input file")
	}
	manifests, rejected, err := bundle.Assemble(raw)
	if err != nil {
		return errors.Wrap(err, "input parse failed")
	}
	slog.Info("input_assembled", "bundles", len(manifests), "rejected", len(rejected))

	ledger, err := db.NewRepository(cfg.LedgerPath)
	if err != nil {
		return errors.Wrap(err, "ledger init failed")
	}
	defer ledger.Close()

	awsSess, err := cloud.NewAWSSession(ctx, cfg.AWSRegion)
	if err != nil {
		return errors.Wrap(err, "AWS session failed")
	}

	// GCP is only needed for gs:// references; tolerate its absence.
	gcpSess, err := cloud.NewGCPSession(ctx, cfg.GoogleProject)
	if err != nil {
		slog.Warn("gcp_session_unavailable", "error", err)
		gcpSess = nil
	}
	if gcpSess != nil {
		defer gcpSess.Close()
	}

	credentials := &cloud.Resolver{
		Region:             cfg.AWSRegion,
		Project:            cfg.GoogleProject,
		AWSCredentialsFile: cfg.AWSCredentialsFile,
		GCPCredentialsFile: cfg.GCPCredentialsFile,
	}

	defaults := map[bundle.Provider]metadata.HeadClient{
		bundle.ProviderAWS: &metadata.S3Head{Session: awsSess},
	}
	if gcpSess != nil {
		defaults[bundle.ProviderGCP] = &metadata.GCSHead{Session: gcpSess}
	}
	resolver := &metadata.Resolver{
		Defaults:    defaults,
		MaxAttempts: cfg.MaxAttempts,
		Scoped: func(ctx context.Context, p bundle.Provider) (metadata.HeadClient, error) {
			switch p {
			case bundle.ProviderAWS:
				sess, err := credentials.ScopedAWS(ctx)
				if err != nil {
					return nil, err
				}
				return &metadata.S3Head{Session: sess}, nil
			case bundle.ProviderGCP:
				sess, err := credentials.ScopedGCP(ctx)
				if err != nil {
					return nil, err
				}
				return &metadata.GCSHead{Session: sess}, nil
			}
			return nil, errors.Tag(errors.ErrAccessDenied,
				fmt.Errorf("no metadata credential for provider %s", p))
		},
	}

	stager := &staging.Stager{
		Store:       &staging.S3Store{Session: awsSess, Bucket: cfg.StagingBucket},
		Bucket:      cfg.StagingBucket,
		DryRun:      cfg.DryRun,
		MaxAttempts: cfg.MaxAttempts,
		Open: func(ctx context.Context, ref bundle.FileRef) (io.ReadCloser, error) {
			if gcpSess == nil {
				return nil, errors.Tag(errors.ErrAccessDenied,
					fmt.Errorf("no GCP session for source %s", ref))
			}
			opener := &staging.GCSOpener{Session: gcpSess}
			return opener.Open(ctx, ref)
		},
	}

	store := &datastore.Client{
		Endpoint:    cfg.Endpoint,
		MaxAttempts: cfg.MaxAttempts,
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := loader.NewMachine(ledger, resolver, stager, store,
		int64(cfg.MaxInFlight), cfg.DryRun, cfg.FSMMaxRetries)
	pipeline := &loader.Pipeline{Manager: manager, Machine: machine, DryRun: cfg.DryRun}

	report, err := pipeline.Run(ctx, manifests, rejected)
	if err != nil {
		return errors.Wrap(err, "pipeline failed")
	}
	report.Print(os.Stdout)

	if !report.OK() {
		return fmt.Errorf("one or more bundles did not verify")
	}
	return nil
}
