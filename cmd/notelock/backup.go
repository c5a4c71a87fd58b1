package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notelock/core/internal/config"
	"github.com/notelock/core/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export all local records to a JSONL backup",
	Long: `Write every stored record to the given file, one JSON object per
line. The backup carries record bodies verbatim, so encrypted bodies stay
encrypted. Run against a stopped core; the database is opened directly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := db.ExportFile(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d records to %s\n", result.Records, args[0])
		reportErrors(result)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import records from a JSONL backup",
	Long: `Read a JSONL backup and upsert every record into the local store.
Existing records with the same type and id are overwritten. Lines that do
not parse are skipped and reported. Run against a stopped core.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		if err := db.InitSchema(ctx); err != nil {
			return err
		}

		result, err := db.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d records from %s\n", result.Records, args[0])
		reportErrors(result)
		return nil
	},
}

func openStore() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.GetString(config.KeyDBPath))
}

func reportErrors(result *store.ExportResult) {
	if len(result.Errors) == 0 {
		return
	}
	fmt.Printf("%d records skipped:\n", len(result.Errors))
	for _, msg := range result.Errors {
		fmt.Printf("  %s\n", msg)
	}
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
