package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagetree/internal/document"
	"github.com/roach88/pagetree/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Golden string // golden directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run editing scenarios",
		Long: `Run scenario files against an in-memory page and compare their
traces with golden files.

Each scenario seeds a page, applies edit steps through a session and
checks the final tree. Golden files live in a "golden" directory next to
the scenarios directory unless --golden is given. A scenario without a
golden file is judged by its assertions alone.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  pagetree test ./testdata/scenarios
  pagetree test ./testdata/scenarios --filter "move_*"
  pagetree test ./testdata/scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default: <scenarios-dir>/../golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}
	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(file, goldenDir, opts, f)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else if result.Total == 0 {
		fmt.Fprintln(f.Writer, "No scenarios found.")
	} else {
		fmt.Fprintf(f.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes one scenario file and reports it.
func runScenario(file, goldenDir string, opts *TestOptions, f *OutputFormatter) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	fail := func(errs ...string) ScenarioResult {
		if f.Format != "json" {
			fmt.Fprintf(f.Writer, "%s %s\n", failMark("✗"), name)
			for _, e := range errs {
				fmt.Fprintf(f.Writer, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(fmt.Sprintf("load error: %v", err))
	}
	name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		return fail(fmt.Sprintf("execution error: %v", err))
	}
	snapshot, err := harness.TraceSnapshot(scenario.Name, result)
	if err != nil {
		return fail(fmt.Sprintf("snapshot error: %v", err))
	}

	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")
	note := ""
	switch {
	case opts.Update:
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			return fail(fmt.Sprintf("golden update error: %v", err))
		}
		if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
			return fail(fmt.Sprintf("golden update error: %v", err))
		}
		note = " (golden updated)"
	default:
		want, err := os.ReadFile(goldenPath)
		if os.IsNotExist(err) {
			f.VerboseLog("%s: no golden file, assertions only", scenario.Name)
			break
		}
		if err != nil {
			return fail(fmt.Sprintf("golden read error: %v", err))
		}
		if !bytes.Equal(want, snapshot) {
			errs := []string{"trace does not match golden file (run with --update to regenerate)"}
			if opts.Verbose {
				errs = append(errs, strings.Split(strings.TrimRight(document.Diff(want, snapshot), "\n"), "\n")...)
			}
			return fail(errs...)
		}
	}

	if !result.Pass {
		return fail(result.Errors...)
	}
	if f.Format != "json" {
		fmt.Fprintf(f.Writer, "%s %s%s\n", okMark("✓"), scenario.Name, dim(note))
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}
