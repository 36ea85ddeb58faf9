package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/core"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show where the database path resolves to",
	Long: `Walk the candidate locations in order and show which one the database
path resolves to, including what the process may do there. Directories
are created as needed, the database file itself is not touched.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "output as JSON")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}

	resolver := newResolver(env)
	candidates := resolver.Candidates(env.cfg.Database.PreferredPath)
	res := resolver.Resolve(cmd.Context(), env.cfg.Database.PreferredPath)

	if resolveJSON {
		return outputJSON(struct {
			Result     *core.PathResolutionResult `json:"result"`
			Candidates []core.PathCandidate       `json:"candidates"`
		}{res, candidates})
	}

	fmt.Println("Candidate locations, in order:")
	for _, c := range candidates {
		marker := " "
		if c.Path == res.ResolvedPath {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s)\n", marker, c.Path, c.Description)
	}

	fmt.Println()
	fmt.Printf("Resolved: %s\n", res.ResolvedPath)
	fmt.Printf("  primary: %v\n", res.IsPrimary)
	fmt.Printf("  needs creation: %v\n", res.CreationRequired)
	perm := res.Permission
	fmt.Printf("  access: read=%v write=%v create=%v\n", perm.CanRead, perm.CanWrite, perm.CanCreate)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	if res.IsTempFallback() {
		fmt.Println()
		fmt.Println("No durable location was writable. The temp directory may be cleaned")
		fmt.Println("by the OS; run 'litekeeper doctor' to find out what is blocking the")
		fmt.Println("regular locations.")
	}
	return nil
}
