package cloud

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// Resolver acquires scoped sessions for metadata access across trust
// boundaries: an assumed AWS role or a GCP user credential. Sessions are
// cached per provider and shared read-only by all workers; acquisition and
// re-acquisition are single-flight so credential expiry never causes an STS
// stampede.
type Resolver struct {
	Region  string
	Project string

	// AWSCredentialsFile holds a role ARN; GCPCredentialsFile a user
	// credential JSON. Empty means no scoped credential is configured for
	// that provider.
	AWSCredentialsFile string
	GCPCredentialsFile string

	// SessionDuration for assumed roles; zero uses DefaultSessionDuration.
	SessionDuration time.Duration

	group singleflight.Group
	mu    sync.Mutex
	aws   *AWSSession
	gcp   *GCPSession
}

// HasScoped reports whether a scoped credential source is configured for
// the provider.
func (r *Resolver) HasScoped(p bundle.Provider) bool {
	switch p {
	case bundle.ProviderAWS:
		return r.AWSCredentialsFile != ""
	case bundle.ProviderGCP:
		return r.GCPCredentialsFile != ""
	}
	return false
}

// ScopedAWS returns the cached assumed-role session, acquiring it on first
// use. Concurrent callers share one acquisition.
func (r *Resolver) ScopedAWS(ctx context.Context) (*AWSSession, error) {
	if r.AWSCredentialsFile == "" {
		return nil, errors.Tag(errors.ErrAccessDenied,
			errors.New("no AWS metadata credential configured"))
	}

	v, err, _ := r.group.Do("aws", func() (any, error) {
		r.mu.Lock()
		cached := r.aws
		r.mu.Unlock()
		if cached != nil {
			if err := cached.CheckValid(ctx); err == nil {
				return cached, nil
			}
			slog.Info("aws_session_reacquire", "reason", "expired")
			r.Invalidate(bundle.ProviderAWS)
		}

		sess, err := NewAssumedRoleSession(ctx, r.Region, r.AWSCredentialsFile, r.SessionDuration)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.aws = sess
		r.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AWSSession), nil
}

// ScopedGCP returns the cached user-credential session, acquiring it on
// first use.
func (r *Resolver) ScopedGCP(ctx context.Context) (*GCPSession, error) {
	if r.GCPCredentialsFile == "" {
		return nil, errors.Tag(errors.ErrAccessDenied,
			errors.New("no GCP metadata credential configured"))
	}

	v, err, _ := r.group.Do("gcp", func() (any, error) {
		r.mu.Lock()
		cached := r.gcp
		r.mu.Unlock()
		if cached != nil {
			return cached, nil
		}

		sess, err := NewUserCredentialGCPSession(ctx, r.Project, r.GCPCredentialsFile)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.gcp = sess
		r.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*GCPSession), nil
}

// Invalidate drops the cached session for a provider, forcing the next
// Scoped call to re-acquire.
func (r *Resolver) Invalidate(p bundle.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch p {
	case bundle.ProviderAWS:
		r.aws = nil
	case bundle.ProviderGCP:
		r.gcp = nil
	}
}
