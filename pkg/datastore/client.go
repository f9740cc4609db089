// Package datastore is the HTTP client for the Data Store API: file
// registration, idempotent bundle creation keyed by UUID, and the read-back
// verification that follows every create.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// StoredFile is one file entry as the store represents it.
type StoredFile struct {
	UUID              string `json:"uuid"`
	GUID              string `json:"guid,omitempty"`
	Name              string `json:"name"`
	URL               string `json:"url"`
	Checksum          string `json:"checksum"`
	ChecksumAlgorithm string `json:"checksum_algorithm"`
	Size              int64  `json:"size"`
	ContentType       string `json:"content_type,omitempty"`
}

// StoredBundle is the bundle document exchanged with the store. Created is
// the RFC3339 timestamp carried through from the input record.
type StoredBundle struct {
	UUID    string       `json:"uuid"`
	Name    string       `json:"name,omitempty"`
	Created string       `json:"created,omitempty"`
	Files   []StoredFile `json:"files"`
}

// ContentComparator decides whether a stored bundle holds the same content as
// the local manifest. The store's own duplicate-detection rule is not pinned
// down, so the comparison is pluggable.
type ContentComparator func(local, remote *StoredBundle) bool

// SameFileSet is the default comparator: equal when both bundles hold the
// same files by UUID, checksum and size, in any order.
func SameFileSet(local, remote *StoredBundle) bool {
	if len(local.Files) != len(remote.Files) {
		return false
	}
	key := func(f StoredFile) string {
		return fmt.Sprintf("%s %s:%s %d", f.UUID, f.ChecksumAlgorithm, f.Checksum, f.Size)
	}
	a := make([]string, len(local.Files))
	b := make([]string, len(remote.Files))
	for i := range local.Files {
		a[i] = key(local.Files[i])
		b[i] = key(remote.Files[i])
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DefaultMaxAttempts bounds transient-error retries per store call.
const DefaultMaxAttempts = 3

// Client talks to one Data Store deployment.
type Client struct {
	// Endpoint is the API base URL, without a trailing slash.
	Endpoint string

	// HTTP is the underlying client; nil means a 30s-timeout default.
	HTTP *http.Client

	// Compare overrides SameFileSet for conflict read-backs.
	Compare ContentComparator

	// MaxAttempts bounds retries of transient errors; zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

// Build converts a fully staged manifest into the store's bundle document.
// Every entry must carry its staged record.
func Build(m *bundle.Manifest) (*StoredBundle, error) {
	stored := &StoredBundle{
		UUID:    m.UUID,
		Name:    m.Name,
		Created: m.Created,
		Files:   make([]StoredFile, 0, len(m.Entries)),
	}
	for _, e := range m.Entries {
		if e.Staged == nil {
			return nil, errors.Tag(errors.ErrValidation,
				fmt.Errorf("bundle %s: file %s not staged", m.UUID, e.UUID))
		}
		contentType := e.Staged.Metadata.ContentType
		if contentType == "" {
			contentType = e.DeclaredContentType
		}
		stored.Files = append(stored.Files, StoredFile{
			UUID:              e.UUID,
			GUID:              e.GUID,
			Name:              e.Name,
			URL:               e.Staged.URL,
			Checksum:          e.Staged.Checksum.Value,
			ChecksumAlgorithm: e.Staged.Checksum.Algorithm,
			Size:              e.Staged.Metadata.Size,
			ContentType:       contentType,
		})
	}
	return stored, nil
}

// RegisterFile registers one staged object with the store.
func (c *Client) RegisterFile(ctx context.Context, f StoredFile) error {
	return c.withRetry(ctx, func() error {
		return c.put(ctx, "/files/"+f.UUID, f, nil)
	})
}

// Submit creates the bundle in the store, idempotently by UUID. A conflict
// with identical content counts as success; a conflict with different content
// is fatal and never overwrites the stored bundle.
func (c *Client) Submit(ctx context.Context, stored *StoredBundle) error {
	for _, f := range stored.Files {
		if err := c.RegisterFile(ctx, f); err != nil {
			return errors.Wrapf(err, "registering file %s", f.UUID)
		}
	}

	err := c.withRetry(ctx, func() error {
		return c.put(ctx, "/bundles/"+stored.UUID, stored, nil)
	})
	if err == nil {
		slog.Info("bundle_submitted", "bundle_uuid", stored.UUID, "files", len(stored.Files))
		return nil
	}
	if !errors.Is(err, errors.ErrConflict) {
		return errors.Wrapf(err, "submitting bundle %s", stored.UUID)
	}

	// The UUID already exists. Identical content means an earlier run got
	// here first and this submission is a no-op.
	remote, rerr := c.fetch(ctx, stored.UUID)
	if rerr != nil {
		return errors.Wrapf(rerr, "reading back conflicting bundle %s", stored.UUID)
	}
	if !c.compare(stored, remote) {
		return errors.Tag(errors.ErrConflict,
			fmt.Errorf("bundle %s already stored with different content", stored.UUID))
	}
	slog.Info("bundle_already_stored", "bundle_uuid", stored.UUID)
	return nil
}

// Verify reads the bundle back and checks it matches what was submitted.
func (c *Client) Verify(ctx context.Context, stored *StoredBundle) error {
	remote, err := c.fetch(ctx, stored.UUID)
	if err != nil {
		return errors.Wrapf(err, "verifying bundle %s", stored.UUID)
	}
	if !c.compare(stored, remote) {
		return errors.Tag(errors.ErrConflict,
			fmt.Errorf("bundle %s read-back does not match submission", stored.UUID))
	}
	slog.Info("bundle_verified", "bundle_uuid", stored.UUID)
	return nil
}

func (c *Client) fetch(ctx context.Context, uuid string) (*StoredBundle, error) {
	var remote StoredBundle
	err := c.withRetry(ctx, func() error {
		return c.get(ctx, "/bundles/"+uuid, &remote)
	})
	if err != nil {
		return nil, err
	}
	return &remote, nil
}

func (c *Client) compare(local, remote *StoredBundle) bool {
	cmp := c.Compare
	if cmp == nil {
		cmp = SameFileSet
	}
	return cmp(local, remote)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		strings.TrimSuffix(c.Endpoint, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(c.Endpoint, "/")+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return errors.Tag(errors.ErrTransient, err)
		}
		return err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decoding response")
		}
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s %s: %s (%s)",
		resp.Request.Method, resp.Request.URL.Path, resp.Status,
		strings.TrimSpace(string(detail)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Tag(errors.ErrNotFound, err)
	case resp.StatusCode == http.StatusConflict:
		return errors.Tag(errors.ErrConflict, err)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Tag(errors.ErrAccessDenied, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Tag(errors.ErrTransient, err)
	default:
		return err
	}
}

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
