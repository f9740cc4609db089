package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/cloud"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// S3Head resolves object metadata via HeadObject. Requester-pays is always
// declared; buckets that aren't requester-pays ignore it.
type S3Head struct {
	Session *cloud.AWSSession
}

func (h *S3Head) Head(ctx context.Context, ref bundle.FileRef) (Head, error) {
	if err := h.Session.CheckValid(ctx); err != nil {
		return Head{}, err
	}

	out, err := h.Session.S3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(ref.Bucket),
		Key:          aws.String(ref.Key),
		RequestPayer: s3types.RequestPayerRequester,
	})
	if err != nil {
		return Head{}, cloud.ClassifyAWS(err)
	}

	head := Head{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}

	// The ETag is the store's own content digest: authoritative and free.
	// Hash locally only when it is absent.
	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag != "" {
		head.Checksum = bundle.Checksum{Algorithm: bundle.AlgorithmS3ETag, Value: etag}
		return head, nil
	}

	sum, err := h.hashObject(ctx, ref)
	if err != nil {
		return Head{}, err
	}
	head.Checksum = sum
	return head, nil
}

func (h *S3Head) hashObject(ctx context.Context, ref bundle.FileRef) (bundle.Checksum, error) {
	out, err := h.Session.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(ref.Bucket),
		Key:          aws.String(ref.Key),
		RequestPayer: s3types.RequestPayerRequester,
	})
	if err != nil {
		return bundle.Checksum{}, cloud.ClassifyAWS(err)
	}
	defer out.Body.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, out.Body); err != nil {
		return bundle.Checksum{}, errors.Tag(errors.ErrTransient,
			errors.Wrapf(err, "hashing %s", ref))
	}
	return bundle.Checksum{
		Algorithm: bundle.AlgorithmSHA256,
		Value:     hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
