package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/migrate"
)

var (
	migrateType       string
	migrateNoBackup   bool
	migrateNoVerify   bool
	migrateNoRollback bool
	migrateReport     bool
	migrateJSON       bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <target-path>",
	Short: "Move the database to a new location",
	Long: `Copy the database to target-path with safety rails: a pre-migration
backup, checksum verification of the copy and automatic rollback when
anything fails. The source file is never deleted.

Migration types:
  full_copy    clone the file byte for byte (default)
  schema_only  recreate table definitions without rows
  data_only    replay rows into an existing target schema

After a successful migration, point database.preferred_path at the new
location.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateType, "type", string(migrate.FullCopy), "migration type")
	migrateCmd.Flags().BoolVar(&migrateNoBackup, "no-backup", false, "skip the pre-migration backup")
	migrateCmd.Flags().BoolVar(&migrateNoVerify, "no-verify", false, "skip checksum verification of the copy")
	migrateCmd.Flags().BoolVar(&migrateNoRollback, "no-rollback", false, "do not roll back on failure")
	migrateCmd.Flags().BoolVar(&migrateReport, "report", false, "write a JSON report next to the source database")
	migrateCmd.Flags().BoolVar(&migrateJSON, "json", false, "output as JSON")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	typ := migrate.Type(migrateType)
	switch typ {
	case migrate.FullCopy, migrate.Incremental, migrate.SchemaOnly, migrate.DataOnly:
	default:
		return fmt.Errorf("unknown migration type %q (full_copy, incremental, schema_only, data_only)", migrateType)
	}

	source := resolvedPath(ctx, env)
	if !fileExists(source) {
		return fmt.Errorf("database file does not exist: %s", source)
	}
	target := args[0]

	mgr := newMigrationManager(env, nil, source)
	plan := mgr.Plan(source, target, typ, migrate.PlanOptions{
		BackupBefore:    !migrateNoBackup,
		VerifyAfter:     !migrateNoVerify,
		RollbackEnabled: !migrateNoRollback,
	})

	if !quiet && !migrateJSON {
		fmt.Printf("Migrating %s\n", source)
		fmt.Printf("       to %s\n", target)
		fmt.Printf("  type: %s, about %s\n", plan.Type, formatBytes(plan.EstimatedSize))
	}

	res := mgr.Execute(ctx, plan)

	if migrateJSON {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Printf("✓ Migration %s completed in %s\n", res.ID, res.Duration.Round(time.Millisecond))
		fmt.Printf("  records: %d, data: %s\n", res.RecordsMigrated, formatBytes(res.DataSizeBytes))
		if res.BackupPath != "" {
			fmt.Printf("  pre-migration backup: %s\n", res.BackupPath)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		fmt.Println()
		fmt.Printf("Set database.preferred_path to %s to use the new location.\n", target)
	} else {
		fmt.Printf("✗ Migration failed: %s\n", res.ErrorMessage)
		if res.Status == migrate.StatusRolledBack {
			fmt.Println("  the target was rolled back; the source database is unchanged")
		}
	}

	// Failed migrations produce a report as well.
	if migrateReport {
		reportPath, err := mgr.WriteReport(mgr.BuildReport(res))
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		if !quiet && !migrateJSON {
			fmt.Println()
			fmt.Println("Report written to", reportPath)
		}
	}

	if !res.Success {
		return fmt.Errorf("migration %s failed", res.ID)
	}
	return nil
}
