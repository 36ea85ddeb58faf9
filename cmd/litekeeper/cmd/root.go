// Package cmd implements the litekeeper command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	quiet     bool

	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "litekeeper",
	Short: "Keep a SQLite database reachable, healthy and recoverable",
	Long: `litekeeper is the storage layer of a desktop application, exposed as a
command line tool. It resolves a usable location for the database file,
validates permissions, verifies integrity, retries transient failures
and falls back through recovery tiers instead of failing outright.

Start with 'litekeeper init' to write a configuration file, then
'litekeeper doctor' to verify the environment and 'litekeeper status'
to open the database through the full access pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion stores the build metadata stamped into the binary.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the version string set at build time.
func GetVersion() string {
	return appVersion
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .litekeeper.yaml, then the user config)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "log format (auto, text, json)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	// Flag values override file values through the shared viper instance.
	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
}
