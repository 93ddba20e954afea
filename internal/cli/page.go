package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagetree/internal/document"
	"github.com/roach88/pagetree/internal/flat"
	"github.com/roach88/pagetree/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Route string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <page> <document.json>",
		Short: "Validate a document and store it as a page",
		Long: `Validate a document and replace the page's tree with it.

The document must be valid in full; nothing is written otherwise. The
database is created if it does not exist.

Examples:
  pagetree import home home.json
  pagetree import home home.json --route /`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Route, "route", "", "set the page route")
	return cmd
}

func runImport(opts *ImportOptions, pageID, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmdContext(cmd)

	reg, err := loadRegistry(opts.RootOptions, f)
	if err != nil {
		return err
	}
	nodes, err := readDocument(path, pageID, reg, f)
	if err != nil {
		return err
	}

	st, err := openStore(opts.RootOptions, f, true)
	if err != nil {
		return err
	}
	defer st.Close()

	_, rev, err := st.Load(ctx, pageID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to read page %s", pageID), err)
	}
	ack, err := st.Save(ctx, pageID, flat.Flatten(nodes), rev)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return f.Fail(ExitFailure, ErrCodeConflict, fmt.Sprintf("page %s changed during import", pageID), err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to save page %s", pageID), err)
	}

	if opts.Route != "" {
		meta, err := st.GetPage(ctx, pageID)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read page metadata", err)
		}
		meta.Route = opts.Route
		if err := st.PutPage(ctx, meta); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to set page route", err)
		}
	}

	if f.Format == "json" {
		return f.Success(ack)
	}
	fmt.Fprintf(f.Writer, "%s imported %d nodes into %s (revision %d)\n", okMark("✓"), ack.Nodes, emphasis(pageID), ack.Revision)
	f.VerboseLog("digest %s", ack.Digest)
	return nil
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "export <page>",
		Short:         "Print a stored page as a document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the document to a file instead of stdout")
	return cmd
}

func runExport(opts *ExportOptions, pageID string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := exportPage(cmd, opts.RootOptions, pageID, f)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("failed to write %s", opts.Output), err)
		}
		if f.Format == "json" {
			return f.Success(map[string]string{"page": pageID, "output": opts.Output})
		}
		fmt.Fprintf(f.Writer, "%s wrote %s\n", okMark("✓"), opts.Output)
		return nil
	}

	if f.Format == "json" {
		return f.Success(json.RawMessage(data))
	}
	_, err = f.Writer.Write(data)
	return err
}

// exportPage loads a page and renders it as a document.
func exportPage(cmd *cobra.Command, opts *RootOptions, pageID string, f *OutputFormatter) ([]byte, error) {
	ctx := cmdContext(cmd)
	reg, err := loadRegistry(opts, f)
	if err != nil {
		return nil, err
	}
	st, err := openStore(opts, f, false)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	roots, _, err := loadPage(ctx, st, reg, pageID, f)
	if err != nil {
		return nil, err
	}
	data, err := document.Export(roots)
	if err != nil {
		return nil, f.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("failed to export page %s", pageID), err)
	}
	return data, nil
}

// QueryResult holds the ids matched by a query.
type QueryResult struct {
	Path string   `json:"path"`
	IDs  []string `json:"ids"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <page> <jsonpath>",
		Short: "Find nodes in a page with a JSONPath expression",
		Long: `Evaluate a JSONPath expression against the page's document and print
the ids of the matched nodes.

Examples:
  pagetree query home "$..[?(@.type == 'button')]"
  pagetree query home '$[0].children[*]'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runQuery(opts *RootOptions, pageID, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := exportPage(cmd, opts, pageID, f)
	if err != nil {
		return err
	}
	ids, err := document.Select(data, path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeQuery, fmt.Sprintf("bad query %q", path), err)
	}
	if ids == nil {
		ids = []string{}
	}

	if f.Format == "json" {
		return f.Success(QueryResult{Path: path, IDs: ids})
	}
	for _, id := range ids {
		fmt.Fprintln(f.Writer, id)
	}
	f.VerboseLog("%d match(es)", len(ids))
	return nil
}

// DiffResult reports the differences between a page and a document.
type DiffResult struct {
	Identical bool   `json:"identical"`
	Diff      string `json:"diff,omitempty"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <page> <document.json>",
		Short: "Compare a stored page with a document",
		Long: `Show a line diff between the stored page and a document file.

Both sides are normalized through export first, so key order and
whitespace in the file do not matter. Lines prefixed "-" are only in the
stored page, lines prefixed "+" only in the file.

Exit codes:
  0 - Identical
  1 - Different (or the document is invalid)
  2 - Command error`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runDiff(opts *RootOptions, pageID, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	stored, err := exportPage(cmd, opts, pageID, f)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(opts, f)
	if err != nil {
		return err
	}
	nodes, err := readDocument(path, pageID, reg, f)
	if err != nil {
		return err
	}
	given, err := document.Export(nodes)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("failed to normalize %s", path), err)
	}

	diff := document.Diff(stored, given)
	if f.Format == "json" {
		if err := f.Success(DiffResult{Identical: diff == "", Diff: diff}); err != nil {
			return err
		}
	} else if diff == "" {
		fmt.Fprintf(f.Writer, "%s %s matches %s\n", okMark("✓"), path, pageID)
	} else {
		for _, line := range strings.SplitAfter(diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+ "):
				fmt.Fprint(f.Writer, addedLine(line))
			case strings.HasPrefix(line, "- "):
				fmt.Fprint(f.Writer, removedLn(line))
			default:
				fmt.Fprint(f.Writer, line)
			}
		}
	}

	if diff != "" {
		return NewExitError(ExitFailure, fmt.Sprintf("%s differs from page %s", path, pageID))
	}
	return nil
}
