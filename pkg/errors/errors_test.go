package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_NilPassthrough(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(ErrNotFound, "head object")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("wrapped error lost sentinel: %v", err)
	}
	if err.Error() != "head object: not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestTag_BothVisible(t *testing.T) {
	cause := fmt.Errorf("api error AccessDenied: 403")
	err := Tag(ErrAccessDenied, cause)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("missing sentinel in %v", err)
	}

	err = Tag(ErrTransient, nil)
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Tag with nil cause should still carry sentinel")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Wrap(Tag(ErrTransient, errors.New("503")), "put bundle")) {
		t.Error("wrapped transient error not detected")
	}
	if IsTransient(ErrAccessDenied) {
		t.Error("access denied must not be transient")
	}
}

func TestIsFatalForBundle(t *testing.T) {
	for _, err := range []error{ErrCredentialExpired, ErrConflict} {
		if !IsFatalForBundle(Wrap(err, "submit")) {
			t.Errorf("%v should be fatal for the bundle", err)
		}
	}
	if IsFatalForBundle(ErrNotFound) {
		t.Error("not-found is per-file, not bundle-fatal")
	}
}
