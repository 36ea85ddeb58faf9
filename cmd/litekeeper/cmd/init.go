package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/config"
)

var (
	initForce bool
	initUser  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	Long: `Create a .litekeeper.yaml configuration file in the current directory,
with every setting present and commented.

With --user the per-user configuration at ~/.config/litekeeper/config.yaml
is written instead; it applies wherever no project file exists.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initUser, "user", false, "write the per-user configuration instead")
}

func runInit(_ *cobra.Command, _ []string) error {
	path, err := initTargetPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}
	if err := config.AtomicWrite(path, []byte(config.DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	if !quiet {
		fmt.Println("Created", path)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  litekeeper doctor   verify the environment")
		fmt.Println("  litekeeper status   open the database through the access pipeline")
	}
	return nil
}

func initTargetPath() (string, error) {
	if initUser {
		path, err := config.UserConfigPath()
		if err != nil {
			return "", fmt.Errorf("locating user configuration: %w", err)
		}
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determining working directory: %w", err)
	}
	return filepath.Join(cwd, ".litekeeper.yaml"), nil
}
