package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/integrity"
)

var (
	checkPath   string
	checkBackup bool
	checkReport bool
	checkJSON   bool
	checkCopy   bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a database integrity check",
	Long: `Run the full integrity pass against the database file: file header
verification, the engine's own structural self-check, schema audit,
foreign-key orphan counting and index consistency.

The pass is read-only unless the write canary is enabled in the
configuration. Use --backup to snapshot the file first and --report to
write a JSON report with statistics next to the database.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPath, "path", "", "check this file instead of the resolved database")
	checkCmd.Flags().BoolVar(&checkBackup, "backup", false, "snapshot the file before checking")
	checkCmd.Flags().BoolVar(&checkReport, "report", false, "write a JSON report next to the database")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "output as JSON")
	checkCmd.Flags().BoolVar(&checkCopy, "copy", false, "copy the JSON result to the clipboard")
}

// checkerFor builds an integrity checker for the explicitly given file,
// or for the resolved database location when path is empty.
func checkerFor(ctx context.Context, env *appEnv, explicit string) (string, *integrity.Checker) {
	path := explicit
	if path == "" {
		path = resolvedPath(ctx, env)
	}
	store := newBackupStore(env.cfg, env.logger, path)
	return path, newChecker(env, path, store, nil)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path, checker := checkerFor(ctx, env, checkPath)

	res := checker.Check(ctx, integrity.CheckOptions{CreateBackup: checkBackup})

	if checkJSON {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		printCheckResult(path, res)
	}
	if checkCopy {
		if err := copyToClipboard(res); err != nil {
			return err
		}
	}

	if checkReport {
		rep := checker.BuildReport(ctx, res)
		reportPath, err := checker.WriteReport(rep)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		if !quiet && !checkJSON {
			fmt.Println()
			fmt.Println("Report written to", reportPath)
		}
	}

	if !res.IsValid {
		return fmt.Errorf("integrity check found %d problem(s)", len(res.Errors))
	}
	return nil
}

func printCheckResult(path string, res *integrity.CheckResult) {
	switch {
	case res.IsValid && len(res.Warnings) == 0:
		fmt.Printf("✓ %s passed the integrity check\n", path)
	case res.IsValid:
		fmt.Printf("⚠ %s passed with warnings\n", path)
	case res.CorruptionDetected:
		fmt.Printf("✗ %s is damaged\n", path)
	default:
		fmt.Printf("✗ %s failed the integrity check\n", path)
	}

	for _, e := range res.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if res.BackupPath != "" {
		fmt.Printf("  backup: %s\n", res.BackupPath)
	}
	fmt.Printf("  checked in %s\n", res.Duration.Round(time.Millisecond))

	if res.CorruptionDetected {
		fmt.Println()
		if res.RepairPossible {
			fmt.Println("Run 'litekeeper repair' to attempt an automatic rebuild.")
		} else {
			fmt.Println("The damage exceeds what an automatic rebuild can handle.")
			fmt.Println("Run 'litekeeper backup restore' to fall back to the latest backup.")
		}
	}
}
