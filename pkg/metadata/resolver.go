// Package metadata resolves per-file metadata (checksum, size, content-type)
// from the source object stores, falling back to scoped credentials when the
// default session is denied.
package metadata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// Head is the store-reported metadata for one object.
type Head struct {
	Checksum    bundle.Checksum
	Size        int64
	ContentType string
}

// HeadClient fetches object metadata from a provider using one credential
// session.
type HeadClient interface {
	Head(ctx context.Context, ref bundle.FileRef) (Head, error)
}

// DefaultMaxAttempts bounds transient-error retries per head call.
const DefaultMaxAttempts = 3

// Resolver memoizes metadata per FileRef for the run's lifetime. The first
// caller for a reference performs the work; concurrent callers for the same
// reference wait for that result.
type Resolver struct {
	// Defaults maps each provider to its default-session head client.
	Defaults map[bundle.Provider]HeadClient

	// Scoped returns a head client backed by the configured metadata
	// credential for the provider, or an error when none is configured.
	// Nil disables the fallback entirely.
	Scoped func(ctx context.Context, p bundle.Provider) (HeadClient, error)

	// MaxAttempts bounds retries of transient errors; zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	group singleflight.Group
	cache sync.Map // FileRef.String() -> *bundle.Metadata
}

// Resolve returns the metadata for ref, computing it at most once per run.
func (r *Resolver) Resolve(ctx context.Context, ref bundle.FileRef) (*bundle.Metadata, error) {
	key := ref.String()
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*bundle.Metadata), nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if cached, ok := r.cache.Load(key); ok {
			return cached.(*bundle.Metadata), nil
		}
		head, err := r.head(ctx, ref)
		if err != nil {
			return nil, err
		}
		md := &bundle.Metadata{
			Checksum:    head.Checksum,
			Size:        head.Size,
			ContentType: head.ContentType,
			Source:      ref,
		}
		r.cache.Store(key, md)
		slog.Info("metadata_resolved", "ref", key,
			"checksum", md.Checksum.String(), "size", md.Size, "content_type", md.ContentType)
		return md, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bundle.Metadata), nil
}

// head tries the default session and, on access denial with a configured
// metadata credential, exactly one scoped fallback. Transient errors are
// retried with bounded backoff inside each attempt.
func (r *Resolver) head(ctx context.Context, ref bundle.FileRef) (Head, error) {
	client, ok := r.Defaults[ref.Provider]
	if !ok {
		return Head{}, errors.Wrapf(errors.New("no session for provider"), "resolve %s", ref)
	}

	head, err := r.withRetry(ctx, ref, client)
	if err == nil {
		return head, nil
	}
	if !errors.Is(err, errors.ErrAccessDenied) || r.Scoped == nil {
		return Head{}, errors.Wrapf(err, "resolve %s", ref)
	}

	slog.Info("metadata_credential_fallback", "ref", ref.String())
	scoped, serr := r.Scoped(ctx, ref.Provider)
	if serr != nil {
		// No usable scoped credential: the original denial stands.
		return Head{}, errors.Wrapf(err, "resolve %s", ref)
	}
	head, err = r.withRetry(ctx, ref, scoped)
	if err != nil {
		return Head{}, errors.Wrapf(err, "resolve %s with metadata credentials", ref)
	}
	return head, nil
}

func (r *Resolver) withRetry(ctx context.Context, ref bundle.FileRef, client HeadClient) (Head, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)), ctx)

	var out Head
	err := backoff.Retry(func() error {
		head, err := client.Head(ctx, ref)
		if err != nil {
			if errors.IsTransient(err) {
				slog.Warn("metadata_head_retry", "ref", ref.String(), "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		out = head
		return nil
	}, bo)
	return out, err
}
