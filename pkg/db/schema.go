package db

// Schema defines the SQLite schema for the run ledger. Each row tracks one
// logical bundle by its deterministic UUID, so a re-run of the same input can
// recognize work that already completed.
const Schema = `
CREATE TABLE IF NOT EXISTS bundles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bundle_uuid TEXT NOT NULL UNIQUE,
    name TEXT,
    fileset_sha256 TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('draft', 'staged', 'submitted', 'verified', 'failed')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bundles_uuid ON bundles(bundle_uuid);
CREATE INDEX IF NOT EXISTS idx_bundles_status ON bundles(status);
CREATE INDEX IF NOT EXISTS idx_bundles_created_at ON bundles(created_at);
`

// Status constants, mirroring the manifest state machine.
const (
	StatusDraft     = "draft"
	StatusStaged    = "staged"
	StatusSubmitted = "submitted"
	StatusVerified  = "verified"
	StatusFailed    = "failed"
)

// Record represents one ledger row for a bundle.
type Record struct {
	ID           int64
	BundleUUID   string
	Name         string
	FilesetSHA   string
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
