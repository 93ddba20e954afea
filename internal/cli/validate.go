package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pagetree/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool `json:"valid"`
	Nodes int  `json:"nodes"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document.json>",
		Short: "Validate a document against the registered kinds",
		Long: `Validate a page document without storing it.

Every node is checked: known type, props against the kind's schema,
children only on containers, unique ids. All problems are reported at once.

Exit codes:
  0 - Document is valid
  1 - Document has problems
  2 - Command error (file not found, bad kinds file)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	reg, err := loadRegistry(opts, f)
	if err != nil {
		return err
	}

	nodes, err := readDocument(path, "", reg, f)
	if err != nil {
		return err
	}

	count := 0
	ir.Walk(nodes, func(*ir.Node) bool {
		count++
		return true
	})

	if f.Format == "json" {
		return f.Success(ValidationResult{Valid: true, Nodes: count})
	}
	fmt.Fprintf(f.Writer, "%s %s valid (%d nodes)\n", okMark("✓"), path, count)
	return nil
}
