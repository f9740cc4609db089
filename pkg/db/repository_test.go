package db

import (
	"path/filepath"
	"testing"
)

func TestRepository_CreateAndGet(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	rec := &Record{
		BundleUUID: "aaaaaaaa-0000-0000-0000-000000000001",
		Name:       "bundle-a",
		FilesetSHA: "abc123",
		Status:     StatusDraft,
	}

	if err := repo.Create(rec); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	retrieved, err := repo.GetByUUID(rec.BundleUUID)
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if retrieved.BundleUUID != rec.BundleUUID || retrieved.FilesetSHA != rec.FilesetSHA {
		t.Errorf("retrieved record mismatch: got %+v, want %+v", retrieved, rec)
	}
}

func TestRepository_GetUnknownUUID(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	rec, err := repo.GetByUUID("aaaaaaaa-0000-0000-0000-00000000dead")
	if err != nil {
		t.Fatalf("lookup of unknown uuid errored: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for unknown uuid, got %+v", rec)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	rec := &Record{
		BundleUUID: "aaaaaaaa-0000-0000-0000-000000000002",
		FilesetSHA: "abc123",
		Status:     StatusDraft,
	}
	if err := repo.Create(rec); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateStatus(rec.ID, StatusVerified, ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	updated, _ := repo.GetByUUID(rec.BundleUUID)
	if updated.Status != StatusVerified {
		t.Errorf("status not updated: got %s, want %s", updated.Status, StatusVerified)
	}
}

func TestRepository_DuplicateUUIDRejected(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	rec := &Record{BundleUUID: "aaaaaaaa-0000-0000-0000-000000000003", FilesetSHA: "h", Status: StatusDraft}
	if err := repo.Create(rec); err != nil {
		t.Fatal(err)
	}
	dup := &Record{BundleUUID: rec.BundleUUID, FilesetSHA: "h", Status: StatusDraft}
	if err := repo.Create(dup); err == nil {
		t.Error("expected unique constraint violation for duplicate bundle_uuid")
	}
}

func TestRepository_List(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	repo.Create(&Record{BundleUUID: "aaaaaaaa-0000-0000-0000-000000000004", FilesetSHA: "h1", Status: StatusVerified})
	repo.Create(&Record{BundleUUID: "aaaaaaaa-0000-0000-0000-000000000005", FilesetSHA: "h2", Status: StatusFailed})

	records, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}
