package staging

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/commons-dss/bundle-loader/pkg/bundle"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]int64

	heads  atomic.Int64
	copies atomic.Int64
	puts   atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]int64{}}
}

func (f *fakeStore) Head(_ context.Context, key string) (int64, bool, error) {
	f.heads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.objects[key]
	return size, ok, nil
}

func (f *fakeStore) Copy(_ context.Context, _ bundle.FileRef, key, _ string) error {
	f.copies.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = 42
	return nil
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ string) error {
	f.puts.Add(1)
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = n
	return nil
}

func awsMetadata(sum string) *bundle.Metadata {
	return &bundle.Metadata{
		Checksum:    bundle.Checksum{Algorithm: bundle.AlgorithmS3ETag, Value: sum},
		Size:        42,
		ContentType: "application/octet-stream",
		Source:      bundle.FileRef{Provider: bundle.ProviderAWS, Bucket: "src", Key: "a.bam"},
	}
}

func TestKey_ShardsByChecksum(t *testing.T) {
	c := bundle.Checksum{Algorithm: bundle.AlgorithmS3ETag, Value: "deadbeef"}
	if got, want := Key(c), "blobs/s3-etag/de/adbeef"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestStage_CopiesNewObject(t *testing.T) {
	store := newFakeStore()
	s := &Stager{Store: store, Bucket: "staging"}

	staged, err := s.Stage(t.Context(), awsMetadata("deadbeef"))
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if staged.Key != "blobs/s3-etag/de/adbeef" {
		t.Errorf("unexpected key %q", staged.Key)
	}
	if staged.URL != "s3://staging/blobs/s3-etag/de/adbeef" {
		t.Errorf("unexpected url %q", staged.URL)
	}
	if store.copies.Load() != 1 || store.puts.Load() != 0 {
		t.Errorf("copies=%d puts=%d, want one copy", store.copies.Load(), store.puts.Load())
	}
}

func TestStage_StreamsCrossProvider(t *testing.T) {
	store := newFakeStore()
	s := &Stager{
		Store:  store,
		Bucket: "staging",
		Open: func(context.Context, bundle.FileRef) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(make([]byte, 42))), nil
		},
	}

	md := awsMetadata("deadbeef")
	md.Source = bundle.FileRef{Provider: bundle.ProviderGCP, Bucket: "src", Key: "a.bam"}

	if _, err := s.Stage(t.Context(), md); err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if store.copies.Load() != 0 || store.puts.Load() != 1 {
		t.Errorf("copies=%d puts=%d, want one put", store.copies.Load(), store.puts.Load())
	}
}

func TestStage_SkipsExistingWithMatchingSize(t *testing.T) {
	store := newFakeStore()
	store.objects["blobs/s3-etag/de/adbeef"] = 42
	s := &Stager{Store: store, Bucket: "staging"}

	staged, err := s.Stage(t.Context(), awsMetadata("deadbeef"))
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if staged.Key != "blobs/s3-etag/de/adbeef" {
		t.Errorf("unexpected key %q", staged.Key)
	}
	if store.copies.Load() != 0 || store.puts.Load() != 0 {
		t.Error("existing object re-transferred")
	}
}

func TestStage_SizeMismatchIsConflict(t *testing.T) {
	store := newFakeStore()
	store.objects["blobs/s3-etag/de/adbeef"] = 17
	s := &Stager{Store: store, Bucket: "staging"}

	_, err := s.Stage(t.Context(), awsMetadata("deadbeef"))
	if !errors.Is(err, errors.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if store.copies.Load() != 0 || store.puts.Load() != 0 {
		t.Error("conflicting object overwritten")
	}
}

func TestStage_DryRunMovesNoBytes(t *testing.T) {
	store := newFakeStore()
	s := &Stager{Store: store, Bucket: "staging", DryRun: true}

	staged, err := s.Stage(t.Context(), awsMetadata("deadbeef"))
	if err != nil {
		t.Fatalf("dry-run stage failed: %v", err)
	}
	if staged.URL != "s3://staging/blobs/s3-etag/de/adbeef" {
		t.Errorf("dry-run staged record not synthesized: %+v", staged)
	}
	if store.heads.Load() != 1 {
		t.Errorf("heads=%d, want existence check to still run", store.heads.Load())
	}
	if store.copies.Load() != 0 || store.puts.Load() != 0 {
		t.Error("dry-run mutated the staging bucket")
	}
}

func TestStage_SameChecksumTransfersOnce(t *testing.T) {
	store := newFakeStore()
	s := &Stager{Store: store, Bucket: "staging"}

	md := awsMetadata("deadbeef")
	other := awsMetadata("deadbeef")
	other.Source.Key = "b.bam"

	if _, err := s.Stage(t.Context(), md); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stage(t.Context(), other); err != nil {
		t.Fatal(err)
	}
	if store.copies.Load() != 1 {
		t.Errorf("copies=%d, want identical bytes transferred once", store.copies.Load())
	}
	if store.heads.Load() != 1 {
		t.Errorf("heads=%d, want cached record to skip the second check", store.heads.Load())
	}
}

func TestStage_TransientHeadRetried(t *testing.T) {
	store := newFakeStore()
	var failures atomic.Int64
	s := &Stager{
		Store:  headFlake{store: store, failures: &failures, failUntil: 2},
		Bucket: "staging",
	}

	if _, err := s.Stage(t.Context(), awsMetadata("deadbeef")); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if got := failures.Load(); got != 2 {
		t.Errorf("transient failures consumed = %d, want 2", got)
	}
	if store.copies.Load() != 1 {
		t.Errorf("copies=%d, want the transfer after recovery", store.copies.Load())
	}
}

// headFlake fails the first failUntil Head calls with a transient error.
type headFlake struct {
	store     *fakeStore
	failures  *atomic.Int64
	failUntil int64
}

func (h headFlake) Head(ctx context.Context, key string) (int64, bool, error) {
	if h.failures.Load() < h.failUntil {
		h.failures.Add(1)
		return 0, false, errors.Tag(errors.ErrTransient, errors.New("503"))
	}
	return h.store.Head(ctx, key)
}

func (h headFlake) Copy(ctx context.Context, src bundle.FileRef, key, ct string) error {
	return h.store.Copy(ctx, src, key, ct)
}

func (h headFlake) Put(ctx context.Context, key string, body io.Reader, ct string) error {
	return h.store.Put(ctx, key, body, ct)
}
