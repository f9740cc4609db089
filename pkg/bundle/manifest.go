package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// Status is a bundle manifest's position in the submission lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusStaged    Status = "staged"
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
)

// transitions is the allowed forward-transition table. Failed is reachable
// from any non-terminal state; verified never regresses.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusStaged, StatusFailed},
	StatusStaged:    {StatusSubmitted, StatusFailed},
	StatusSubmitted: {StatusVerified, StatusFailed},
	StatusVerified:  {},
	StatusFailed:    {},
}

// Entry is one file in a manifest: the parsed reference plus whatever has
// been resolved and staged so far.
type Entry struct {
	// GUID is the identifier from the input record, e.g.
	// "dg.4503/887388d7-a974-4259-86af-f5305172363d".
	GUID string
	// UUID is the RFC4122 portion of the GUID, used as the file identity
	// in the Data Store.
	UUID string
	Name string
	// Refs lists every cloud location the input declared for this file.
	// Refs[0] is the primary location used for resolution and staging.
	Refs []FileRef
	// Declared metadata from the input record, if any. Authoritative
	// values come from resolution.
	DeclaredContentType string

	Metadata *Metadata
	Staged   *StagedFile
}

// Ref returns the primary cloud location.
func (e *Entry) Ref() FileRef { return e.Refs[0] }

// Manifest is a bundle being driven toward the Data Store. The UUID is
// derived deterministically from the input, so re-running the loader on the
// same input addresses the same logical bundle.
type Manifest struct {
	UUID    string
	Name    string
	Created string
	Entries []*Entry

	status Status
}

// Status returns the current lifecycle status.
func (m *Manifest) Status() Status {
	if m.status == "" {
		return StatusDraft
	}
	return m.status
}

// Advance moves the manifest to next, enforcing the transition table.
func (m *Manifest) Advance(next Status) error {
	cur := m.Status()
	for _, allowed := range transitions[cur] {
		if next == allowed {
			m.status = next
			return nil
		}
	}
	return fmt.Errorf("illegal manifest transition %s -> %s", cur, next)
}

// Fail marks the manifest failed. A no-op on verified manifests, which are
// terminal.
func (m *Manifest) Fail() {
	if m.Status() != StatusVerified {
		m.status = StatusFailed
	}
}

// FilesetHash is a stable digest of the manifest's file identities, computed
// from the input alone (not from resolution results). The run ledger stores
// it so a re-run can tell "same bundle, same files" from "same bundle id,
// different content".
func (m *Manifest) FilesetHash() string {
	lines := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		lines = append(lines, e.UUID+" "+e.Ref().String())
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Validate rejects manifests that must not reach the resolver or stager.
func (m *Manifest) Validate() error {
	if len(m.Entries) == 0 {
		return errors.Tag(errors.ErrValidation,
			fmt.Errorf("bundle %s references zero files", m.UUID))
	}
	seen := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		if prev, ok := seen[e.UUID]; ok && prev != e.Ref().String() {
			return errors.Tag(errors.ErrValidation,
				fmt.Errorf("bundle %s: file %s declared at both %s and %s",
					m.UUID, e.UUID, prev, e.Ref()))
		}
		seen[e.UUID] = e.Ref().String()
	}
	return nil
}

// CheckResolved validates post-resolution invariants: two entries that
// resolved to the same checksum must not declare different content-types,
// since the staged object can only carry one.
func (m *Manifest) CheckResolved() error {
	types := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		if e.Metadata == nil {
			return fmt.Errorf("bundle %s: entry %s not resolved", m.UUID, e.UUID)
		}
		key := e.Metadata.Checksum.String()
		if prev, ok := types[key]; ok && prev != e.Metadata.ContentType {
			return errors.Tag(errors.ErrValidation,
				fmt.Errorf("bundle %s: checksum %s has ambiguous content-types %q and %q",
					m.UUID, key, prev, e.Metadata.ContentType))
		}
		types[key] = e.Metadata.ContentType
	}
	return nil
}
