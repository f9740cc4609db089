package cloud

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// staticCreds is a credential provider returning a fixed result.
type staticCreds struct {
	creds aws.Credentials
	err   error
}

func (s staticCreds) Retrieve(context.Context) (aws.Credentials, error) {
	return s.creds, s.err
}

func TestCheckValid_AssumedRetrieveFailure(t *testing.T) {
	sess := &AWSSession{
		creds:   staticCreds{err: errors.New("AssumeRole: role session expired")},
		assumed: true,
	}
	err := sess.CheckValid(t.Context())
	if !errors.Is(err, errors.ErrCredentialExpired) {
		t.Errorf("assumed-role retrieve failure = %v, want ErrCredentialExpired", err)
	}
}

func TestCheckValid_AssumedPastDuration(t *testing.T) {
	sess := &AWSSession{
		creds: staticCreds{creds: aws.Credentials{
			AccessKeyID: "AKIAEXAMPLE",
			CanExpire:   true,
			Expires:     time.Now().Add(-time.Minute),
		}},
		assumed: true,
	}
	err := sess.CheckValid(t.Context())
	if !errors.Is(err, errors.ErrCredentialExpired) {
		t.Errorf("expired session = %v, want ErrCredentialExpired", err)
	}
}

func TestCheckValid_DefaultRetrieveFailureIsNotExpiry(t *testing.T) {
	sess := &AWSSession{creds: staticCreds{err: errors.New("no credential sources")}}
	err := sess.CheckValid(t.Context())
	if err == nil {
		t.Fatal("retrieve failure must surface an error")
	}
	if errors.Is(err, errors.ErrCredentialExpired) {
		t.Errorf("default-chain failure must not be reported as expiry: %v", err)
	}
}

func TestCheckValid_UsableCredentials(t *testing.T) {
	sess := &AWSSession{
		creds: staticCreds{creds: aws.Credentials{
			AccessKeyID: "AKIAEXAMPLE",
			CanExpire:   true,
			Expires:     time.Now().Add(time.Hour),
		}},
		assumed: true,
	}
	if err := sess.CheckValid(t.Context()); err != nil {
		t.Errorf("unexpected error for live credentials: %v", err)
	}

	// A session without a tracked provider has nothing to check.
	if err := (&AWSSession{}).CheckValid(t.Context()); err != nil {
		t.Errorf("nil provider should pass: %v", err)
	}
}

func TestResolver_InvalidateDropsCachedSession(t *testing.T) {
	r := &Resolver{}
	r.aws = &AWSSession{assumed: true}
	r.gcp = &GCPSession{}

	r.Invalidate(bundle.ProviderAWS)
	if r.aws != nil {
		t.Error("aws session survived invalidation")
	}
	if r.gcp == nil {
		t.Error("gcp session dropped by aws invalidation")
	}

	r.Invalidate(bundle.ProviderGCP)
	if r.gcp != nil {
		t.Error("gcp session survived invalidation")
	}
}
