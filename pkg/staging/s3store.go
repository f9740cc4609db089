package staging

import (
	"context"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/cloud"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// S3Store is the staging bucket backed by S3. Writes go through the loader's
// own credentials; a denial here is a deployment problem, not a source-access
// problem, and surfaces as ErrPermissionDenied.
type S3Store struct {
	Session *cloud.AWSSession
	Bucket  string
}

func (s *S3Store) Head(ctx context.Context, key string) (int64, bool, error) {
	if err := s.Session.CheckValid(ctx); err != nil {
		return 0, false, err
	}
	out, err := s.Session.S3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = cloud.ClassifyAWS(err)
		if errors.Is(err, errors.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, s.classify(err)
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

func (s *S3Store) Copy(ctx context.Context, src bundle.FileRef, key, contentType string) error {
	if err := s.Session.CheckValid(ctx); err != nil {
		return err
	}
	in := &s3.CopyObjectInput{
		Bucket:     aws.String(s.Bucket),
		Key:        aws.String(key),
		CopySource: aws.String(url.PathEscape(src.Bucket + "/" + src.Key)),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
		in.MetadataDirective = "REPLACE"
	}
	if _, err := s.Session.S3.CopyObject(ctx, in); err != nil {
		return s.classify(cloud.ClassifyAWS(err))
	}
	return nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := s.Session.CheckValid(ctx); err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.Session.S3.PutObject(ctx, in); err != nil {
		return s.classify(cloud.ClassifyAWS(err))
	}
	return nil
}

// classify re-maps access denial on the staging bucket to the permission
// sentinel. A denial here is a deployment problem, unlike source-side denials
// which have a credential fallback.
func (s *S3Store) classify(err error) error {
	if errors.Is(err, errors.ErrAccessDenied) && !errors.Is(err, errors.ErrPermissionDenied) {
		return errors.Tag(errors.ErrPermissionDenied, err)
	}
	return err
}
