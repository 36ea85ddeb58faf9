package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/config"
	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/diagnostics"
	"github.com/litekeeper/litekeeper/internal/locate"
	"github.com/litekeeper/litekeeper/internal/logging"
)

var (
	doctorJSON bool
	doctorCopy bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the storage environment",
	Long: `Check everything the storage layer depends on: configuration validity,
the resolved database location and its permissions, free disk space,
the volume behind the path, and processes holding the database open.

Nothing is modified; doctor only reads.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output as JSON")
	doctorCmd.Flags().BoolVar(&doctorCopy, "copy", false, "copy the JSON report to the clipboard")
}

// doctorReport is the collected outcome of every probe, shaped for both
// the human rendering and --json.
type doctorReport struct {
	ConfigFile       string                     `json:"config_file,omitempty"`
	ConfigIssues     []string                   `json:"config_issues,omitempty"`
	UnknownKeys      []config.UnknownKey        `json:"unknown_keys,omitempty"`
	Resolution       *core.PathResolutionResult `json:"resolution,omitempty"`
	DatabaseExists   bool                       `json:"database_exists"`
	DatabaseSize     int64                      `json:"database_size_bytes,omitempty"`
	PermissionIssues []string                   `json:"permission_issues,omitempty"`
	Disk             *diagnostics.DiskSpace     `json:"disk,omitempty"`
	NetworkPath      bool                       `json:"network_path"`
	Device           *diagnostics.BlockDevice   `json:"device,omitempty"`
	DeviceWarnings   []string                   `json:"device_warnings,omitempty"`
	LockHolders      []core.ProcessInfo         `json:"lock_holders,omitempty"`
	BackupCount      int                        `json:"backup_count"`
	LatestBackup     string                     `json:"latest_backup,omitempty"`
	System           diagnostics.SystemInfo     `json:"system"`
	Healthy          bool                       `json:"healthy"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	report := collectDoctorReport(cmd.Context())

	if doctorJSON {
		if err := outputJSON(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(report)
	}
	if doctorCopy {
		if err := copyToClipboard(report); err != nil {
			return err
		}
	}

	if !report.Healthy {
		return fmt.Errorf("environment check failed")
	}
	return nil
}

// collectDoctorReport runs every probe it can. A broken configuration
// ends the database-side probes early but never stops the system ones.
func collectDoctorReport(ctx context.Context) *doctorReport {
	report := &doctorReport{}

	loader := newLoader()
	cfg, err := loader.Load()
	if err != nil {
		report.ConfigIssues = append(report.ConfigIssues, err.Error())
	} else {
		report.ConfigFile = loader.ConfigFile()
		report.UnknownKeys = loader.UnknownKeys()
		if verr := config.ValidateConfig(cfg); verr != nil {
			var verrs config.ValidationErrors
			if errors.As(verr, &verrs) {
				for _, e := range verrs {
					report.ConfigIssues = append(report.ConfigIssues, e.Error())
				}
			} else {
				report.ConfigIssues = append(report.ConfigIssues, verr.Error())
			}
		}
		collectDatabaseProbes(ctx, cfg, report)
	}

	report.System = diagnostics.NewSystemCollector().Collect()

	report.Healthy = len(report.ConfigIssues) == 0 &&
		report.Resolution != nil &&
		!report.Resolution.IsTempFallback() &&
		len(report.PermissionIssues) == 0 &&
		!report.NetworkPath
	return report
}

func collectDatabaseProbes(ctx context.Context, cfg *config.Config, report *doctorReport) {
	nop := logging.NewNop()
	resolver := locate.NewResolver(cfg.App.Name, cfg.Database.Filename,
		locate.WithLogger(nop),
		locate.WithExtraDirs(cfg.Database.ExtraDirs...))
	res := resolver.Resolve(ctx, cfg.Database.PreferredPath)
	report.Resolution = res
	path := res.ResolvedPath

	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		report.DatabaseExists = true
		report.DatabaseSize = fi.Size()
	}

	// A database that does not exist yet is not a problem; what matters
	// then is whether it can be created where resolution points.
	validator := locate.NewAccessValidator(nop)
	if report.DatabaseExists {
		report.PermissionIssues = validator.PermissionIssues(path)
	} else if perm := validator.CheckFile(path); !perm.CanCreate {
		msg := "cannot create the database file"
		if perm.ErrorMessage != "" {
			msg += ": " + perm.ErrorMessage
		}
		report.PermissionIssues = append(report.PermissionIssues, msg)
	}

	if space, err := diagnostics.SpaceFor(path); err == nil {
		report.Disk = &space
	}
	report.NetworkPath = diagnostics.IsNetworkPath(path)
	if dev, ok := diagnostics.DeviceFor(path); ok {
		report.Device = dev
		report.DeviceWarnings = dev.Warnings()
	}
	if report.DatabaseExists {
		if holders, err := diagnostics.NewInspector().OpenHandles(ctx, path); err == nil {
			report.LockHolders = holders
		}
	}

	store := newBackupStore(cfg, nop, path)
	if backups, err := store.List(); err == nil {
		report.BackupCount = len(backups)
		if len(backups) > 0 {
			report.LatestBackup = backups[0].Path
		}
	}
}

func printDoctorReport(r *doctorReport) {
	fmt.Println("Checking configuration...")
	if len(r.ConfigIssues) == 0 {
		if r.ConfigFile != "" {
			fmt.Printf("  ✓ configuration valid (%s)\n", r.ConfigFile)
		} else {
			fmt.Println("  ○ no configuration file, using defaults (run 'litekeeper init')")
		}
	}
	for _, issue := range r.ConfigIssues {
		fmt.Printf("  ✗ %s\n", issue)
	}
	for _, uk := range r.UnknownKeys {
		if uk.Suggestion != "" {
			fmt.Printf("  ⚠ unknown key %q (did you mean %q?)\n", uk.Key, uk.Suggestion)
		} else {
			fmt.Printf("  ⚠ unknown key %q\n", uk.Key)
		}
	}

	if r.Resolution == nil {
		fmt.Println()
		fmt.Println("Fix the configuration and run doctor again.")
		return
	}

	fmt.Println()
	fmt.Println("Checking database location...")
	res := r.Resolution
	if res.IsTempFallback() {
		fmt.Printf("  ✗ only the temp directory is writable: %s\n", res.ResolvedPath)
	} else if res.IsPrimary {
		fmt.Printf("  ✓ resolves to %s\n", res.ResolvedPath)
	} else {
		fmt.Printf("  ⚠ preferred location unusable, resolves to %s\n", res.ResolvedPath)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
	if r.DatabaseExists {
		fmt.Printf("  ✓ database file present (%s)\n", formatBytes(r.DatabaseSize))
	} else {
		fmt.Println("  ○ database file will be created on first open")
	}
	for _, issue := range r.PermissionIssues {
		fmt.Printf("  ✗ %s\n", issue)
	}

	fmt.Println()
	fmt.Println("Checking volume...")
	if r.Disk != nil {
		icon := "✓"
		if r.Disk.FreeBytes < 100<<20 {
			icon = "⚠"
		}
		fmt.Printf("  %s %s free of %s (%s)\n", icon,
			formatBytes(int64(r.Disk.FreeBytes)),
			formatBytes(int64(r.Disk.TotalBytes)),
			r.Disk.Fstype)
	} else {
		fmt.Println("  ○ disk space unavailable")
	}
	if r.NetworkPath {
		fmt.Println("  ✗ the database sits on a network path; file locking is unreliable there")
	}
	if r.Device != nil {
		fmt.Printf("  ✓ volume device: %s\n", deviceLabel(r.Device))
	}
	for _, w := range r.DeviceWarnings {
		fmt.Printf("  ⚠ %s\n", w)
	}

	fmt.Println()
	fmt.Println("Checking processes...")
	if len(r.LockHolders) == 0 {
		fmt.Println("  ✓ no other process holds the database open")
	}
	for _, p := range r.LockHolders {
		fmt.Printf("  ⚠ held open by %s (pid %d)\n", p.Name, p.PID)
	}

	fmt.Println()
	fmt.Println("Checking backups...")
	if r.BackupCount > 0 {
		fmt.Printf("  ✓ %d backup(s), latest: %s\n", r.BackupCount, r.LatestBackup)
	} else {
		fmt.Println("  ○ no backups yet (run 'litekeeper backup create')")
	}

	sys := r.System
	fmt.Println()
	fmt.Printf("Host: %s, %s %s (%s), %d CPUs, %.0f/%.0f MB memory used\n",
		sys.Hostname, sys.Platform, sys.PlatformVersion, sys.Arch,
		sys.NumCPU, sys.MemUsedMB, sys.MemTotalMB)

	fmt.Println()
	if r.Healthy {
		fmt.Println("Environment looks healthy.")
	} else {
		fmt.Println("Problems found. Fix the ✗ items above and run doctor again.")
	}
}

func deviceLabel(d *diagnostics.BlockDevice) string {
	label := d.Name
	if d.Model != "" {
		label += " (" + d.Model + ")"
	}
	if d.DriveType != "" {
		label += ", " + d.DriveType
	}
	return label
}
