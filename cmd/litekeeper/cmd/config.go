package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/litekeeper/litekeeper/internal/fsutil"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration in use",
	Long: `Print the configuration file litekeeper found, or the effective defaults
when no file exists. Unknown keys are reported on stderr with a
suggestion when one is close enough.`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path of the configuration file in use",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	loader := newLoader()
	if _, err := loader.Load(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if file := loader.ConfigFile(); file != "" {
		data, err := fsutil.ReadFileScoped(file)
		if err != nil {
			return fmt.Errorf("reading configuration file: %w", err)
		}
		if !quiet {
			fmt.Printf("# %s\n", file)
		}
		os.Stdout.Write(data)
	} else {
		if !quiet {
			fmt.Println("# built-in defaults, no configuration file found")
		}
		data, err := yaml.Marshal(loader.AllSettings())
		if err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		os.Stdout.Write(data)
	}

	for _, uk := range loader.UnknownKeys() {
		if uk.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "warning: unknown key %q (did you mean %q?)\n", uk.Key, uk.Suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "warning: unknown key %q\n", uk.Key)
		}
	}
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	loader := newLoader()
	if _, err := loader.Load(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if file := loader.ConfigFile(); file != "" {
		fmt.Println(file)
		return nil
	}
	return fmt.Errorf("no configuration file found, run 'litekeeper init' to create one")
}
