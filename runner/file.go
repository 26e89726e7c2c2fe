package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/option"
	"github.com/caffeineduck/doctest/parser"
)

// FileOptions configures RunFile.
type FileOptions struct {
	// Name overrides the DocTest name. Default is the file's base name.
	Name string
	// Parser defaults to one using the Lua prompt syntax.
	Parser  *parser.Parser
	Globals doctest.Environment
	Flags   option.Flags
	Verbose bool
	// Report writes a summary after the run.
	Report bool
	// FailFast stops at the first failing example and returns its error.
	FailFast bool
	Output   io.Writer
	// Runner holds extra options applied after the ones above.
	Runner []Option
}

// RunFile treats a whole text file as a single DocTest and runs it.
func RunFile(ctx context.Context, path string, sandbox doctest.Sandbox, opts FileOptions) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("read %s: %w", path, err)
	}

	p := opts.Parser
	if p == nil {
		if p, err = parser.New(parser.LuaSyntax(), nil); err != nil {
			return Stats{}, err
		}
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(path)
	}

	test, err := p.DocTest(string(data), opts.Globals, name, doctest.Location{File: path, Line: 0})
	if err != nil {
		return Stats{}, err
	}

	ropts := []Option{WithFlags(opts.Flags), WithVerbose(opts.Verbose)}
	if opts.Output != nil {
		ropts = append(ropts, WithOutput(opts.Output))
	}
	ropts = append(ropts, opts.Runner...)

	var r *Runner
	if opts.FailFast {
		r = NewDebugRunner(sandbox, ropts...)
	} else {
		r = New(sandbox, ropts...)
	}

	stats, err := r.Run(ctx, test, nil)
	if err != nil {
		return stats, err
	}
	if opts.Report {
		r.Summarize(opts.Verbose)
	}
	return stats, nil
}
