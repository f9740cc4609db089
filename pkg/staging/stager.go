// Package staging copies file bytes into the staging bucket under
// content-derived keys, so identical bytes land exactly once no matter how
// many references point at them.
package staging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// Store is the staging bucket surface the stager needs.
type Store interface {
	// Head reports whether key exists and, if so, its size.
	Head(ctx context.Context, key string) (size int64, exists bool, err error)
	// Copy performs a same-provider server-side copy from src into key.
	Copy(ctx context.Context, src bundle.FileRef, key, contentType string) error
	// Put streams body into key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// DefaultMaxAttempts bounds transient-error retries per staging operation.
const DefaultMaxAttempts = 3

// Stager stages resolved files into the staging bucket. Safe for concurrent
// use; staging the same checksum from multiple workers performs the transfer
// at most once.
type Stager struct {
	Store  Store
	Bucket string

	// Open returns a reader over a source object for cross-provider
	// transfers (the staging bucket cannot server-side copy from another
	// provider).
	Open func(ctx context.Context, ref bundle.FileRef) (io.ReadCloser, error)

	// DryRun restricts staging to the existence check; no bytes move.
	DryRun bool

	// MaxAttempts bounds retries of transient errors; zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	group singleflight.Group
	cache sync.Map // staging key -> *bundle.StagedFile
}

// Key derives the deterministic staging key for a checksum. The two-level
// prefix shards keys so bucket listings stay usable at scale.
func Key(c bundle.Checksum) string {
	v := c.Value
	if len(v) < 3 {
		return fmt.Sprintf("blobs/%s/%s", c.Algorithm, v)
	}
	return fmt.Sprintf("blobs/%s/%s/%s", c.Algorithm, v[:2], v[2:])
}

// Stage ensures md's bytes are present in the staging bucket and returns the
// staged record. Re-staging the same checksum is a no-op.
func (s *Stager) Stage(ctx context.Context, md *bundle.Metadata) (*bundle.StagedFile, error) {
	key := Key(md.Checksum)
	if cached, ok := s.cache.Load(key); ok {
		return cached.(*bundle.StagedFile), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if cached, ok := s.cache.Load(key); ok {
			return cached.(*bundle.StagedFile), nil
		}
		staged, err := s.stage(ctx, md, key)
		if err != nil {
			return nil, err
		}
		s.cache.Store(key, staged)
		return staged, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bundle.StagedFile), nil
}

func (s *Stager) stage(ctx context.Context, md *bundle.Metadata, key string) (*bundle.StagedFile, error) {
	staged := &bundle.StagedFile{
		Checksum: md.Checksum,
		Key:      key,
		URL:      fmt.Sprintf("s3://%s/%s", s.Bucket, key),
		Metadata: md,
	}

	err := s.withRetry(ctx, func() error {
		size, exists, err := s.Store.Head(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			if size != md.Size {
				return errors.Tag(errors.ErrConflict,
					fmt.Errorf("staged object %s has size %d, expected %d", key, size, md.Size))
			}
			slog.Info("stage_skipped_existing", "key", key, "size", size)
			return nil
		}

		if s.DryRun {
			slog.Info("stage_dry_run", "key", key, "source", md.Source.String())
			return nil
		}

		return s.transfer(ctx, md, key)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "staging %s", md.Source)
	}
	return staged, nil
}

func (s *Stager) transfer(ctx context.Context, md *bundle.Metadata, key string) error {
	if md.Source.Provider == bundle.ProviderAWS {
		slog.Info("stage_copy", "source", md.Source.String(), "key", key)
		return s.Store.Copy(ctx, md.Source, key, md.ContentType)
	}

	slog.Info("stage_stream", "source", md.Source.String(), "key", key, "size", md.Size)
	body, err := s.Open(ctx, md.Source)
	if err != nil {
		return err
	}
	defer body.Close()
	return s.Store.Put(ctx, key, body, md.ContentType)
}

func (s *Stager) withRetry(ctx context.Context, op func() error) error {
	attempts := s.MaxAttempts
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
