package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/cloud"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// GCSHead resolves object metadata from Cloud Storage object attributes.
type GCSHead struct {
	Session *cloud.GCPSession
}

func (h *GCSHead) Head(ctx context.Context, ref bundle.FileRef) (Head, error) {
	attrs, err := h.Session.Object(ref).Attrs(ctx)
	if err != nil {
		return Head{}, cloud.ClassifyGCS(err)
	}

	head := Head{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
	}

	// GCS reports CRC32C for every object, including composites where MD5
	// is absent. Zero on a non-empty object means the digest is genuinely
	// unavailable and we fall back to hashing the bytes ourselves.
	if attrs.CRC32C != 0 || attrs.Size == 0 {
		head.Checksum = bundle.Checksum{
			Algorithm: bundle.AlgorithmCRC32C,
			Value:     fmt.Sprintf("%08x", attrs.CRC32C),
		}
		return head, nil
	}

	sum, err := h.hashObject(ctx, ref)
	if err != nil {
		return Head{}, err
	}
	head.Checksum = sum
	return head, nil
}

func (h *GCSHead) hashObject(ctx context.Context, ref bundle.FileRef) (bundle.Checksum, error) {
	reader, err := h.Session.Object(ref).NewReader(ctx)
	if err != nil {
		return bundle.Checksum{}, cloud.ClassifyGCS(err)
	}
	defer reader.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return bundle.Checksum{}, errors.Tag(errors.ErrTransient,
			errors.Wrapf(err, "hashing %s", ref))
	}
	return bundle.Checksum{
		Algorithm: bundle.AlgorithmSHA256,
		Value:     hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
