package staging

import (
	"context"
	"io"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/cloud"
)

// GCSOpener streams source bytes out of Cloud Storage for cross-provider
// transfers into the staging bucket.
type GCSOpener struct {
	Session *cloud.GCPSession
}

func (o *GCSOpener) Open(ctx context.Context, ref bundle.FileRef) (io.ReadCloser, error) {
	reader, err := o.Session.Object(ref).NewReader(ctx)
	if err != nil {
		return nil, cloud.ClassifyGCS(err)
	}
	return reader, nil
}
