package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/pagetree/internal/store"
)

// NewPagesCommand creates the pages command.
func NewPagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pages",
		Short:         "List stored pages",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPages(rootOpts, cmd)
		},
	}
	cmd.AddCommand(newDeletePageCommand(rootOpts))
	return cmd
}

func runPages(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmdContext(cmd)

	st, err := openStore(opts, f, false)
	if err != nil {
		return err
	}
	defer st.Close()

	pages, err := st.ListPages(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list pages", err)
	}

	if f.Format == "json" {
		return f.Success(pages)
	}
	if len(pages) == 0 {
		fmt.Fprintln(f.Writer, dim("no pages"))
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tROUTE\tREVISION")
	for _, p := range pages {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.ID, p.Route, p.Revision)
	}
	return tw.Flush()
}

func newDeletePageCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <page>",
		Short:         "Delete a page with its nodes and history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			st, err := openStore(rootOpts, f, false)
			if err != nil {
				return err
			}
			defer st.Close()

			pageID := args[0]
			if err := st.DeletePage(cmdContext(cmd), pageID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("page not found: %s", pageID), nil)
				}
				return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to delete page %s", pageID), err)
			}
			if f.Format == "json" {
				return f.Success(map[string]string{"deleted": pageID})
			}
			fmt.Fprintf(f.Writer, "%s deleted %s\n", okMark("✓"), pageID)
			return nil
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <page>",
		Short:         "Show the save history of a page",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
}

func runHistory(opts *RootOptions, pageID string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts, f, false)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.History(cmdContext(cmd), pageID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to read history of %s", pageID), err)
	}
	if len(records) == 0 {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("page not found: %s", pageID), nil)
	}

	if f.Format == "json" {
		return f.Success(records)
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REV\tKIND\tNODES\tUPSERTS\tDELETES\tDIGEST")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n", r.Revision, r.Kind, r.Nodes, r.Upserts, r.Deletes, shortDigest(r.Digest))
	}
	return tw.Flush()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// cmdContext returns the command's context, or Background when run
// outside Execute (tests calling RunE directly).
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
