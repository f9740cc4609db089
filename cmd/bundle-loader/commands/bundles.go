package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/commons-dss/bundle-loader/internal/config"
	"github.com/commons-dss/bundle-loader/pkg/db"
	"github.com/commons-dss/bundle-loader/pkg/errors"
)

var bundlesCmd = &cobra.Command{
	Use:   "bundles",
	Short: "List bundles recorded in the run ledger",
	RunE:  runBundles,
}

func init() {
	rootCmd.AddCommand(bundlesCmd)
}

func runBundles(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.LedgerPath, ""); err != nil {
		return err
	}

	ledger, err := db.NewRepository(cfg.LedgerPath)
	if err != nil {
		return errors.Wrap(err, "ledger init failed")
	}
	defer ledger.Close()

	records, err := ledger.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(records) == 0 {
		fmt.Println("No bundles recorded")
		return nil
	}

	fmt.Printf("%-38s %-30s %-10s %-20s\n", "BUNDLE UUID", "NAME", "STATUS", "UPDATED")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, rec := range records {
		name := rec.Name
		if name == "" {
			name = "-"
		}
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Printf("%-38s %-30s %-10s %-20s\n",
			rec.BundleUUID, name, rec.Status, rec.UpdatedAt)
		if rec.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", rec.ErrorMessage)
		}
	}

	return nil
}
