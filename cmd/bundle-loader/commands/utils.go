package commands

import (
	"os"
	"path/filepath"

	"github.com/commons-dss/bundle-loader/pkg/errors"
)

// ensureDirectories creates the parent directories for local state files
func ensureDirectories(ledgerPath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create ledger directory")
	}

	// Only needed for the load command
	if fsmDBPath != "" {
		if err := os.MkdirAll(filepath.Dir(fsmDBPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}
