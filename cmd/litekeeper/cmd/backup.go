package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/storage"
)

var (
	backupReason   string
	backupListJSON bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore database backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup of the database",
	Long: `Snapshot the live database into the backup directory using the engine's
own VACUUM INTO, which produces a consistent copy even while the file is
in use. Retention limits from the configuration are applied afterwards.`,
	RunE: runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups, newest first",
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore a backup over the database",
	Long: `Copy a backup over the database file. Without an argument the newest
backup is used. The replacement is swapped in atomically and stale WAL
sidecars are removed. Close the application before restoring.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackupRestore,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupCreateCmd.Flags().StringVar(&backupReason, "reason", "manual", "label recorded in the backup file name")
	backupListCmd.Flags().BoolVar(&backupListJSON, "json", false, "output as JSON")
}

func runBackupCreate(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path := resolvedPath(ctx, env)
	if !fileExists(path) {
		return fmt.Errorf("database file does not exist: %s", path)
	}

	db, err := storage.Open(ctx, path, openOptionsFromConfig(env.cfg))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := newBackupStore(env.cfg, env.logger, path)
	info, err := store.Create(ctx, db, backupReason)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	if !quiet {
		fmt.Printf("Created %s (%s)\n", info.Path, formatBytes(info.SizeBytes))
	}
	return nil
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	store := newBackupStore(env.cfg, env.logger, resolvedPath(cmd.Context(), env))

	backups, err := store.List()
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	if backupListJSON {
		return outputJSON(backups)
	}
	if len(backups) == 0 {
		fmt.Println("No backups found in", store.Dir())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKUP\tSIZE\tCREATED\tFORMAT")
	for _, b := range backups {
		format := "db"
		if b.Archive {
			format = "zip"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			filepath.Base(b.Path),
			formatBytes(b.SizeBytes),
			b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			format)
	}
	return w.Flush()
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path := resolvedPath(ctx, env)
	store := newBackupStore(env.cfg, env.logger, path)

	var backupPath string
	if len(args) == 1 {
		backupPath = args[0]
	} else {
		latest, ok, err := store.Latest()
		if err != nil {
			return fmt.Errorf("finding latest backup: %w", err)
		}
		if !ok {
			return fmt.Errorf("no backups available in %s", store.Dir())
		}
		backupPath = latest.Path
	}

	if err := store.Restore(backupPath); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}

	if !quiet {
		fmt.Printf("Restored %s from %s\n", path, backupPath)
		fmt.Println("Run 'litekeeper check' to verify the restored database.")
	}
	return nil
}
