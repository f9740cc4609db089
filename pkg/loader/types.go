package loader

// BundleRequest is the FSM input: the deterministic bundle UUID, which keys
// the in-memory manifest set and the run ledger.
type BundleRequest struct {
	BundleUUID string
}

// BundleResponse is the FSM output (accumulated across transitions)
type BundleResponse struct {
	// From CheckLedger
	RecordID int64
	Skipped  bool

	// From Resolve/Stage
	FilesResolved int
	FilesStaged   int

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckLedger = "check_ledger"
	StateResolve     = "resolve"
	StateStage       = "stage"
	StateSubmit      = "submit"
	StateVerify      = "verify"
	StateComplete    = "complete"
	StateFailed      = "failed"
)
