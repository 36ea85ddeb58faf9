package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/retry"
	"github.com/litekeeper/litekeeper/internal/storage"
	"github.com/litekeeper/litekeeper/internal/tui"
)

var (
	statusJSON  bool
	statusWatch bool
	statusCopy  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Open the database and report storage status",
	Long: `Open the database through the full access pipeline and report what came
out of it: the resolved path, connection state, integrity verdict and
fallback posture.

With --watch a live dashboard stays open and follows storage events
until 'q' is pressed.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "show a live dashboard instead of a one-shot report")
	statusCmd.Flags().BoolVar(&statusCopy, "copy", false, "copy the JSON report to the clipboard")
}

// statusView is the JSON shape of `status --json`.
type statusView struct {
	Status   core.StorageStatus      `json:"status"`
	Health   storage.HealthReport    `json:"health"`
	Fallback storage.FallbackMetrics `json:"fallback"`
	Retry    retry.Stats             `json:"retry"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	if statusWatch && env.cfg.Log.File == "" {
		// The terminal belongs to the dashboard; without a log file
		// configured, log lines would tear the display apart.
		env.logger = logging.NewNop()
	}

	ctx := cmd.Context()
	stack := buildStack(ctx, env)
	defer stack.Close()

	_, openErr := stack.coord.Open(ctx)

	if statusWatch {
		return runWatch(ctx, stack)
	}

	if openErr == nil {
		_ = stack.coord.HealthCheck(ctx)
	}

	view := statusView{
		Status:   stack.coord.Status(),
		Health:   stack.coord.Health(),
		Fallback: stack.coord.FallbackMetrics(),
		Retry:    stack.coord.Executor().Stats(),
	}
	if statusJSON {
		if err := outputJSON(view); err != nil {
			return err
		}
	} else {
		printStatus(view, stack.resolution.Warnings)
	}
	if statusCopy {
		if err := copyToClipboard(view); err != nil {
			return err
		}
	}
	if openErr != nil {
		return fmt.Errorf("storage unavailable: %w", openErr)
	}
	return nil
}

func printStatus(view statusView, warnings []string) {
	st := view.Status
	fmt.Printf("Database: %s\n", st.DatabasePath)
	fmt.Printf("State: %s\n", st.State)
	if st.IsFallback {
		suffix := ""
		if core.IsTemporaryFallback(st.FallbackType) {
			suffix = " (temporary, data will not survive a restart)"
		}
		fmt.Printf("Fallback: %s%s\n", st.FallbackType, suffix)
	}
	fmt.Printf("Integrity: %s\n", st.IntegrityStatus)
	fmt.Printf("Connection attempts: %d\n", st.ConnectionAttempts)
	if st.LastError != "" {
		fmt.Printf("Last error: %s\n", st.LastError)
	}
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	h := view.Health
	if h.TotalProbes > 0 {
		fmt.Println()
		fmt.Printf("Probes: %d total, %d failed\n", h.TotalProbes, h.FailedProbes)
		fmt.Printf("Probe latency: %s\n", h.LastLatency.Round(time.Microsecond))
	}
}

// runWatch hands the terminal to the dashboard and keeps the health loop
// running behind it.
func runWatch(ctx context.Context, stack *storageStack) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := stack.coord.RunHealthLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		p := tea.NewProgram(
			tui.New(stack.coord, stack.bus),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
