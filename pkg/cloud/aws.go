// Package cloud owns credential acquisition for the supported providers.
// Sessions are explicit values threaded through resolver and stager calls;
// there is no ambient global client, so parallel work can never leak
// credentials across provider contexts.
package cloud

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// MaxSessionDuration is the provider ceiling for an assumed-role session.
const MaxSessionDuration = 12 * time.Hour

// DefaultSessionDuration is requested when assuming a role; roles configured
// with a lower maximum will reject longer requests.
const DefaultSessionDuration = time.Hour

// AWSSession is a scoped S3 session. The zero source (ambient default
// credentials) and an assumed cross-account role are both represented the
// same way so callers never branch on how the session was built.
type AWSSession struct {
	S3 *s3.Client

	creds   aws.CredentialsProvider
	assumed bool
}

// NewAWSSession builds a session from the process's default credential
// chain.
func NewAWSSession(ctx context.Context, region string) (*AWSSession, error) {
	slog.Info("aws_session_init", "region", region, "assumed", false)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return &AWSSession{S3: s3.NewFromConfig(cfg), creds: cfg.Credentials}, nil
}

// NewAssumedRoleSession reads a role ARN from roleFile and builds a session
// backed by STS role assumption. Credentials are cached and refreshed by the
// SDK until the role's session ceiling; past that, CheckValid surfaces
// ErrCredentialExpired instead of falling back to default credentials.
func NewAssumedRoleSession(ctx context.Context, region, roleFile string, duration time.Duration) (*AWSSession, error) {
	raw, err := os.ReadFile(roleFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read role ARN file")
	}
	roleARN := strings.TrimSpace(string(raw))
	if roleARN == "" {
		return nil, errors.New("role ARN file is empty")
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	if duration > MaxSessionDuration {
		duration = MaxSessionDuration
	}

	slog.Info("aws_session_init", "region", region, "assumed", true, "duration", duration.String())

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleARN,
		func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "bundle-loader"
			o.Duration = duration
		})
	cache := aws.NewCredentialsCache(provider)
	cfg.Credentials = cache

	return &AWSSession{
		S3:      s3.NewFromConfig(cfg),
		creds:   cache,
		assumed: true,
	}, nil
}

// Assumed reports whether this session came from role assumption.
func (s *AWSSession) Assumed() bool { return s.assumed }

// CheckValid verifies the session's credentials are still usable. For
// assumed-role sessions an expired credential is reported as
// ErrCredentialExpired so callers re-acquire instead of silently proceeding.
func (s *AWSSession) CheckValid(ctx context.Context) error {
	if s.creds == nil {
		return nil
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		if s.assumed {
			return errors.Tag(errors.ErrCredentialExpired, err)
		}
		return errors.Wrap(err, "failed to retrieve credentials")
	}
	if creds.CanExpire && creds.Expired() {
		return errors.Tag(errors.ErrCredentialExpired,
			errors.New("assumed-role session past its duration"))
	}
	return nil
}

// ClassifyAWS maps an aws-sdk/smithy error onto the loader's error taxonomy.
// Errors it cannot place are returned unchanged.
func ClassifyAWS(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errors.Tag(errors.ErrNotFound, err)
		case "AccessDenied", "AccessDeniedException", "Forbidden":
			return errors.Tag(errors.ErrAccessDenied, err)
		case "ExpiredToken", "ExpiredTokenException", "RequestExpired", "InvalidToken":
			return errors.Tag(errors.ErrCredentialExpired, err)
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"ServiceUnavailable", "InternalError":
			return errors.Tag(errors.ErrTransient, err)
		case "QuotaExceeded", "ServiceQuotaExceededException":
			return errors.Tag(errors.ErrQuotaExceeded, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == 404:
			return errors.Tag(errors.ErrNotFound, err)
		case code == 403:
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
