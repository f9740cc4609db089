// Package loader drives each bundle through the submission workflow as a
// finite state machine: ledger check, metadata resolution, staging,
// submission and read-back verification, using the superfly/fsm library.
package loader

import (
	"context"
	"sync"

	"github.com/superfly/fsm"
	"golang.org/x/sync/semaphore"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/datastore"
	"github.com/commons-dss/bundle-loader/pkg/db"
	"github.com/commons-dss/bundle-loader/pkg/errors"
	"github.com/commons-dss/bundle-loader/pkg/metadata"
	"github.com/commons-dss/bundle-loader/pkg/staging"
)

// Machine holds dependencies for FSM transitions. Manifests are registered
// before their machines start and only their entries mutate afterwards, each
// from its own machine.
type Machine struct {
	ledger     *db.Repository
	resolver   *metadata.Resolver
	stager     *staging.Stager
	store      *datastore.Client
	sem        *semaphore.Weighted
	dryRun     bool
	maxRetries int

	mu        sync.Mutex
	manifests map[string]*bundle.Manifest
	stored    map[string]*datastore.StoredBundle
}

// NewMachine creates a new FSM machine with dependencies. maxInFlight caps
// concurrent per-file cloud operations across all bundles.
func NewMachine(
	ledger *db.Repository,
	resolver *metadata.Resolver,
	stager *staging.Stager,
	store *datastore.Client,
	maxInFlight int64,
	dryRun bool,
	maxRetries int,
) *Machine {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Machine{
		ledger:     ledger,
		resolver:   resolver,
		stager:     stager,
		store:      store,
		sem:        semaphore.NewWeighted(maxInFlight),
		dryRun:     dryRun,
		maxRetries: maxRetries,
		manifests:  make(map[string]*bundle.Manifest),
		stored:     make(map[string]*datastore.StoredBundle),
	}
}

// Add registers a manifest so its machine can find it by UUID.
func (m *Machine) Add(manifest *bundle.Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[manifest.UUID] = manifest
}

func (m *Machine) manifest(uuid string) *bundle.Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifests[uuid]
}

// Register registers the bundle submission FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[BundleRequest, BundleResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[BundleRequest, BundleResponse](manager, "bundle-load").
		Start(StateCheckLedger, m.handleCheckLedger).
		To(StateResolve, m.handleResolve).
		To(StateStage, m.handleStage).
		To(StateSubmit, m.handleSubmit).
		To(StateVerify, m.handleVerify).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
