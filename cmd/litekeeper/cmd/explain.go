package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/litekeeper/litekeeper/internal/core"
)

// errorKinds lists every classified storage error, in the order the
// access pipeline tends to hit them.
var errorKinds = []core.Kind{
	core.KindFileNotFound,
	core.KindPermissionDenied,
	core.KindDiskFull,
	core.KindFileLocked,
	core.KindCorruption,
	core.KindNetworkPath,
	core.KindSecurityBlock,
	core.KindInvalidPath,
	core.KindUnknown,
}

var explainCmd = &cobra.Command{
	Use:   "explain [error-kind]",
	Short: "Explain a storage error kind and how to fix it",
	Long: `Explain what a classified storage error means in plain language and list
the suggested fixes, the same text the application surfaces to users.

Run without arguments to list the known kinds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("Known error kinds:")
		for _, k := range errorKinds {
			fmt.Printf("  %s\n", k)
		}
		fmt.Println()
		fmt.Println("Run 'litekeeper explain <kind>' for details.")
		return nil
	}

	kind := core.Kind(strings.ToLower(args[0]))
	if !knownKind(kind) {
		if s := suggestKind(args[0]); s != "" {
			return fmt.Errorf("unknown error kind %q (did you mean %q?)", args[0], s)
		}
		return fmt.Errorf("unknown error kind %q", args[0])
	}

	out, err := renderMarkdown(explainMarkdown(kind))
	if err != nil {
		// Fall back to the raw markdown when the terminal renderer
		// cannot be built.
		fmt.Print(explainMarkdown(kind))
		return nil
	}
	fmt.Print(out)
	return nil
}

func knownKind(kind core.Kind) bool {
	for _, k := range errorKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func suggestKind(input string) string {
	names := make([]string, len(errorKinds))
	for i, k := range errorKinds {
		names[i] = string(k)
	}
	matches := fuzzy.Find(strings.ToLower(input), names)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func explainMarkdown(kind core.Kind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", kind)
	sb.WriteString(core.Explanation(kind))
	sb.WriteString("\n\n## Suggested fixes\n\n")
	for i, r := range core.Remedies(kind) {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return sb.String()
}

func renderMarkdown(md string) (string, error) {
	if noColor {
		return md, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
