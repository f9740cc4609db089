package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "bundle-loader",
	Short: "Commons DSS loader - submit dataset bundles to the Data Store",
	Long:  `Ingests transformed dataset metadata, stages file bytes into the staging bucket, and submits immutable content-addressed bundles to the Data Store.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", "", "Data Store API base URL")
	rootCmd.PersistentFlags().String("staging-bucket", "", "S3 staging bucket name")
	rootCmd.PersistentFlags().String("aws-region", "us-east-1", "AWS region")
	rootCmd.PersistentFlags().String("google-project", "", "GCP project billed for requester-pays reads")
	rootCmd.PersistentFlags().String("aws-credentials-file", "", "File holding a role ARN for cross-account metadata access")
	rootCmd.PersistentFlags().String("gcp-credentials-file", "", "User-credential JSON file for GCP metadata access")
	rootCmd.PersistentFlags().Bool("dry-run", false, "Validate and resolve without mutating anything")
	rootCmd.PersistentFlags().Int("max-in-flight", 8, "Max concurrent per-file cloud operations")
	rootCmd.PersistentFlags().Int("max-attempts", 3, "Attempts per cloud/store call on transient errors")
	rootCmd.PersistentFlags().String("ledger-path", ".artifacts/ledger.db", "Run ledger SQLite path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")

	viper.BindPFlag("endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("staging-bucket", rootCmd.PersistentFlags().Lookup("staging-bucket"))
	viper.BindPFlag("aws-region", rootCmd.PersistentFlags().Lookup("aws-region"))
	viper.BindPFlag("google-project", rootCmd.PersistentFlags().Lookup("google-project"))
	viper.BindPFlag("aws-credentials-file", rootCmd.PersistentFlags().Lookup("aws-credentials-file"))
	viper.BindPFlag("gcp-credentials-file", rootCmd.PersistentFlags().Lookup("gcp-credentials-file"))
	viper.BindPFlag("dry-run", rootCmd.PersistentFlags().Lookup("dry-run"))
	viper.BindPFlag("max-in-flight", rootCmd.PersistentFlags().Lookup("max-in-flight"))
	viper.BindPFlag("max-attempts", rootCmd.PersistentFlags().Lookup("max-attempts"))
	viper.BindPFlag("ledger-path", rootCmd.PersistentFlags().Lookup("ledger-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
}
