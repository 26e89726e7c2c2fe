package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/doctest/config"
	"github.com/caffeineduck/doctest/discovery"
	"github.com/caffeineduck/doctest/runner"
)

// errFailed reports a run with failing examples.
type errFailed struct{ failed, attempted int }

func (e *errFailed) Error() string {
	return fmt.Sprintf("%d of %d examples failed", e.failed, e.attempted)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run the examples found in files and directories",
		Long: `Find and run documentation examples.

Each path may be a file or a directory:
  - .go files: doc comments of the package and its declarations
  - .md files: fenced code blocks in the configured languages
  - any other file: the whole file is one test

Directories are searched for .go, .md, .txt and .doctest files.
Without paths, the config's paths (or the current directory) are used.`,
		RunE: runRun,
	}
	cmd.Flags().BoolP("verbose", "v", false, "Report every example, not just failures")
	cmd.Flags().StringSliceP("option", "o", nil, "Enable (+NAME) or disable (-NAME) an option flag (repeatable)")
	cmd.Flags().Bool("fail-fast", false, "Stop at the first failing example")
	cmd.Flags().String("format", "text", "Summary format: text, table")
	cmd.Flags().StringSlice("markdown-lang", nil, "Fenced block languages to test in Markdown files")
	cmd.Flags().Bool("include-empty", false, "List Go declarations without doc comments as tests")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	out := cmd.OutOrStdout()

	verbose := s.cfg.Verbose
	if f.Changed("verbose") {
		verbose, _ = f.GetBool("verbose")
	}
	failFast := s.cfg.FailFast
	if f.Changed("fail-fast") {
		failFast, _ = f.GetBool("fail-fast")
	}
	if opts, _ := f.GetStringSlice("option"); len(opts) > 0 {
		o, err := s.registry.Parse(strings.Join(opts, ","))
		if err != nil {
			return err
		}
		s.flags = o.Apply(s.flags)
	}
	format, _ := f.GetString("format")
	if format != "text" && format != "table" {
		return fmt.Errorf("unknown format %q", format)
	}
	if f.Changed("markdown-lang") {
		s.cfg.Markdown.Languages, _ = f.GetStringSlice("markdown-lang")
	}
	includeEmpty, _ := f.GetBool("include-empty")

	paths := args
	if len(paths) == 0 {
		paths = s.cfg.Paths
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	finder, err := finderFor(paths, s.cfg, includeEmpty)
	if err != nil {
		return err
	}
	tests, err := discovery.Collect(cmd.Context(), finder, s.parser, s.cfg.Globals)
	if err != nil {
		return err
	}
	s.logger.Info("collected tests", "count", len(tests))

	sb, release, err := buildSandbox(cmd, s)
	if err != nil {
		return err
	}
	defer release()

	opts := []runner.Option{
		runner.WithFlags(s.flags),
		runner.WithVerbose(verbose),
		runner.WithOutput(out),
		runner.WithLogger(s.logger),
	}
	var r *runner.Runner
	if failFast {
		r = runner.NewDebugRunner(sb, opts...)
	} else {
		r = runner.New(sb, opts...)
	}

	for _, test := range tests {
		if _, err := r.Run(cmd.Context(), test, nil); err != nil {
			var failure *runner.Failure
			var unexpected *runner.UnexpectedError
			switch {
			case errors.As(err, &failure):
				fmt.Fprintf(out, "%s\nGot:\n%s", err, failure.Got)
			case errors.As(err, &unexpected):
				fmt.Fprintf(out, "%s\n", err)
			}
			return err
		}
	}

	switch format {
	case "table":
		writeTable(out, r.Summary())
	default:
		r.Summarize(verbose)
	}

	total := r.Totals()
	writeStatus(out, total)
	if total.Failed > 0 {
		return &errFailed{failed: total.Failed, attempted: total.Attempted}
	}
	return nil
}

// finderFor picks a finder per path: Go and Markdown sources by
// extension, any other file whole, and all three for directories.
func finderFor(paths []string, cfg *config.Config, includeEmpty bool) (discovery.Finder, error) {
	var finders []discovery.Finder
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		one := []string{p}
		switch {
		case info.IsDir():
			finders = append(finders,
				&discovery.GoFinder{Paths: one, IncludeEmpty: includeEmpty},
				&discovery.MarkdownFinder{Paths: one, Languages: cfg.Markdown.Languages},
				&discovery.FileFinder{Paths: one, Extensions: []string{".txt", ".doctest"}},
			)
		case filepath.Ext(p) == ".go":
			finders = append(finders, &discovery.GoFinder{Paths: one, IncludeEmpty: includeEmpty, IncludeTests: true})
		case filepath.Ext(p) == ".md" || filepath.Ext(p) == ".markdown":
			finders = append(finders, &discovery.MarkdownFinder{Paths: one, Languages: cfg.Markdown.Languages})
		default:
			finders = append(finders, &discovery.FileFinder{Paths: one})
		}
	}
	return discovery.Multi(finders...), nil
}

func writeTable(w io.Writer, s runner.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Test", "Examples", "Failed", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Examples", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
	})
	for _, tally := range s.Failed {
		t.AppendRow(table.Row{tally.Name, tally.Attempted, tally.Failed, "FAIL"})
	}
	for _, tally := range s.Passed {
		t.AppendRow(table.Row{tally.Name, tally.Attempted, 0, "PASS"})
	}
	for _, name := range s.NoTests {
		t.AppendRow(table.Row{name, 0, 0, "-"})
	}
	t.AppendFooter(table.Row{"Total", s.Total.Attempted, s.Total.Failed, ""})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// writeStatus prints the closing PASS or FAIL line, coloured when w is a
// terminal.
func writeStatus(w io.Writer, total runner.Stats) {
	o := termenv.NewOutput(w)
	if total.Failed > 0 {
		status := o.String("FAIL").Foreground(o.Color("1")).Bold()
		fmt.Fprintf(w, "%s: %d of %d examples failed\n", status, total.Failed, total.Attempted)
		return
	}
	status := o.String("PASS").Foreground(o.Color("2")).Bold()
	fmt.Fprintf(w, "%s: %d examples\n", status, total.Attempted)
}
