package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagetree/internal/registry"
)

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List registered component kinds",
		Long: `List every registered component kind with its props.

Builtin kinds are always present; --kinds adds kinds from CUE files.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(rootOpts, cmd)
		},
	}
}

func runKinds(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	reg, err := loadRegistry(opts, f)
	if err != nil {
		return err
	}

	kinds := reg.Kinds()
	if f.Format == "json" {
		return f.Success(kinds)
	}

	w := f.Writer
	for _, k := range kinds {
		shape := "leaf"
		if k.Container {
			shape = "container"
		}
		fmt.Fprintf(w, "%s %s", emphasis(k.Tag), dim("("+shape+")"))
		if k.Description != "" {
			fmt.Fprintf(w, "  %s", k.Description)
		}
		fmt.Fprintln(w)
		for _, line := range fieldLines(k.Schema) {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	return nil
}

// fieldLines renders one line per prop: name, type and constraints.
func fieldLines(s registry.PropSchema) []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		spec := s.Fields[name]
		var parts []string
		if spec.Required {
			parts = append(parts, "required")
		}
		if len(spec.Enum) > 0 {
			parts = append(parts, "one of "+strings.Join(spec.Enum, "|"))
		}
		if spec.Min != nil {
			parts = append(parts, fmt.Sprintf(">= %d", *spec.Min))
		}
		if spec.Max != nil {
			parts = append(parts, fmt.Sprintf("<= %d", *spec.Max))
		}
		if spec.Check != "" {
			parts = append(parts, "check "+spec.Check)
		}
		line := fmt.Sprintf("%s: %s", name, spec.Type)
		if len(parts) > 0 {
			line += " " + dim("("+strings.Join(parts, ", ")+")")
		}
		lines = append(lines, line)
	}
	if s.Strict {
		lines = append(lines, dim("no other props"))
	}
	return lines
}
