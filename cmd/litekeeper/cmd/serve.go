package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/litekeeper/litekeeper/internal/api"
	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/notify"
	"github.com/litekeeper/litekeeper/internal/storage"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage supervisor with the local status API",
	Long: `Open the database and keep it supervised: the health loop probes the
connection, the file watcher reacts to external changes, and a local
HTTP API exposes status, integrity checks, backups and a live event
stream.

The API listens on the configured address (default 127.0.0.1:7070) and
is meant for same-machine consumers such as the application shell.
Stop with Ctrl-C; the database is closed cleanly on the way out.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides api.listen)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event-driven notifications flow through the bridge below; a direct
	// notifier on the coordinator would say everything twice.
	stack := buildStack(ctx, env, storage.WithNotifier(core.NopNotifier{}))
	defer stack.Close()

	st, err := stack.coord.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	env.logger.Info("storage ready",
		"path", st.DatabasePath,
		"state", string(st.State),
		"fallback", st.IsFallback)

	addr := env.cfg.API.Listen
	if serveListen != "" {
		addr = serveListen
	}

	server := api.NewServer(stack.coord, stack.recovery,
		api.WithLogger(env.logger),
		api.WithVersion(appVersion),
		api.WithAllowedOrigins(env.cfg.API.AllowedOrigins))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := stack.coord.RunHealthLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		bridge := notify.NewBridge(stack.bus, notify.NewLogNotifier(env.logger),
			notify.WithLogger(env.logger))
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx, addr)
	})

	if !quiet {
		fmt.Printf("Serving on http://%s\n", addr)
		fmt.Println("Press Ctrl-C to stop.")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if !quiet {
		fmt.Println("Stopped.")
	}
	return nil
}
