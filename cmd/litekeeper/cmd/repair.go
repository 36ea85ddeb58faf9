package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	repairPath string
	repairJSON bool
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rebuild a damaged database file",
	Long: `Rebuild the database by replaying every readable schema object and row
into a fresh file, which replaces the original only after it passes
verification.

A backup is taken unconditionally before the rebuild. A failed attempt
leaves the original file untouched.`,
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().StringVar(&repairPath, "path", "", "repair this file instead of the resolved database")
	repairCmd.Flags().BoolVar(&repairJSON, "json", false, "output as JSON")
}

func runRepair(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path, checker := checkerFor(ctx, env, repairPath)

	if !fileExists(path) {
		return fmt.Errorf("database file does not exist: %s", path)
	}

	res, err := checker.Repair(ctx)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}

	if repairJSON {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Printf("✓ Rebuilt %s\n", path)
		fmt.Printf("  recovered rows: %d\n", res.RecoveredRows)
		if res.SkippedStatements > 0 {
			fmt.Printf("  skipped statements: %d\n", res.SkippedStatements)
		}
		if res.BackupPath != "" {
			fmt.Printf("  pre-repair backup: %s\n", res.BackupPath)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		fmt.Printf("  took %s\n", res.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("✗ Rebuild failed: %s\n", res.Message)
		if res.BackupPath != "" {
			fmt.Printf("  the original file is untouched; pre-repair backup: %s\n", res.BackupPath)
		}
	}

	if !res.Success {
		return fmt.Errorf("repair did not produce a healthy database")
	}
	return nil
}
