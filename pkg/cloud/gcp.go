package cloud

import (
	"context"
	"log/slog"
	"net"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// GCPSession is a scoped Cloud Storage session. Project, when set, is billed
// for requester-pays bucket access.
type GCPSession struct {
	Client  *storage.Client
	Project string

	scoped bool
}

// NewGCPSession builds a session from application default credentials.
func NewGCPSession(ctx context.Context, project string) (*GCPSession, error) {
	slog.Info("gcp_session_init", "project", project, "scoped", false)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client")
	}
	return &GCPSession{Client: client, Project: project}, nil
}

// NewUserCredentialGCPSession loads user credentials from credFile in place
// of the service-account defaults. The file is deliberately separate from
// GOOGLE_APPLICATION_CREDENTIALS so a configured user credential can never
// be shadowed by ambient service-account credentials.
func NewUserCredentialGCPSession(ctx context.Context, project, credFile string) (*GCPSession, error) {
	slog.Info("gcp_session_init", "project", project, "scoped", true, "credentials_file", credFile)

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(credFile))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client from user credentials")
	}
	return &GCPSession{Client: client, Project: project, scoped: true}, nil
}

// Scoped reports whether this session uses explicit user credentials.
func (s *GCPSession) Scoped() bool { return s.scoped }

// Object returns a handle for ref, with the billing project applied for
// requester-pays buckets.
func (s *GCPSession) Object(ref bundle.FileRef) *storage.ObjectHandle {
	bucket := s.Client.Bucket(ref.Bucket)
	if s.Project != "" {
		bucket = bucket.UserProject(s.Project)
	}
	return bucket.Object(ref.Key)
}

// Close releases the underlying client.
func (s *GCPSession) Close() error { return s.Client.Close() }

// ClassifyGCS maps a Cloud Storage error onto the loader's error taxonomy.
// Errors it cannot place are returned unchanged.
func ClassifyGCS(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return errors.Tag(errors.ErrNotFound, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.Code; {
		case code == 404:
			return errors.Tag(errors.ErrNotFound, err)
		case code == 401 || code == 403:
			return errors.Tag(errors.ErrAccessDenied, err)
		case code == 429 || code >= 500:
			return errors.Tag(errors.ErrTransient, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Tag(errors.ErrTransient, err)
	}
	return err
}
