// Package runner executes the examples of a DocTest and reports the
// outcome of each one.
//
// # Overview
//
// A [Runner] holds the session's default option flags and the statistics
// of every DocTest it has run. Examples run strictly in order against the
// DocTest's environment, so later examples see the bindings made by
// earlier ones.
//
//	r := runner.New(sandbox.NewLua(), runner.WithVerbose(false))
//	stats, err := r.Run(ctx, test, os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Summarize(false)
//
// # Debugging
//
// A runner built with [NewDebugRunner] stops at the first failing example
// and returns a [*Failure] or [*UnexpectedError] describing it instead of
// writing a report.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/checker"
	"github.com/caffeineduck/doctest/option"
)

// Outcome classifies the result of one example.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeBoom
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeBoom:
		return "boom"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Stats counts failed and attempted examples.
type Stats struct {
	Failed    int `json:"failed"`
	Attempted int `json:"attempted"`
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{Failed: s.Failed + o.Failed, Attempted: s.Attempted + o.Attempted}
}

// SinkFunc adapts a text callback to io.Writer. Each report event is
// delivered as one call.
type SinkFunc func(text string)

func (f SinkFunc) Write(p []byte) (int, error) {
	f(string(p))
	return len(p), nil
}

// Runner runs DocTests and accumulates their statistics. It is not safe
// for concurrent use.
type Runner struct {
	sandbox doctest.Sandbox
	checker *checker.Checker
	flags   option.Flags
	verbose bool
	debug   bool
	out     io.Writer
	logger  *slog.Logger
	hooks   Hooks

	totals Stats
	byName map[string]Stats
}

// Option configures a Runner.
type Option func(*Runner)

// WithFlags sets the session default option flags.
func WithFlags(f option.Flags) Option {
	return func(r *Runner) { r.flags = f }
}

// WithVerbose reports every example attempted, not only failures.
func WithVerbose(v bool) Option {
	return func(r *Runner) { r.verbose = v }
}

// WithOutput sets the writer used by Summarize and by Run when no sink is
// given. Default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithChecker replaces the output checker.
func WithChecker(c *checker.Checker) Option {
	return func(r *Runner) { r.checker = c }
}

// WithLogger sets the logger for per-example diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(r *Runner) { r.hooks = h }
}

// New returns a Runner that evaluates snippets with sandbox.
func New(sandbox doctest.Sandbox, opts ...Option) *Runner {
	r := &Runner{
		sandbox: sandbox,
		checker: checker.New(),
		out:     os.Stdout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		byName:  make(map[string]Stats),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDebugRunner returns a Runner that stops at the first failing example.
// Run then returns a *Failure or *UnexpectedError, leaves the DocTest's
// environment untouched for inspection and records no statistics for
// that run.
func NewDebugRunner(sandbox doctest.Sandbox, opts ...Option) *Runner {
	r := New(sandbox, opts...)
	r.debug = true
	return r
}

// Flags returns the session default flags.
func (r *Runner) Flags() option.Flags { return r.flags }

// Totals returns the statistics accumulated over every run.
func (r *Runner) Totals() Stats { return r.totals }

type runConfig struct {
	clearEnv bool
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// KeepEnvironment leaves the DocTest's bindings in place after the run so
// a later run can build on them.
func KeepEnvironment() RunOption {
	return func(c *runConfig) { c.clearEnv = false }
}

// Run executes every example of test and writes reports to sink. A nil
// sink uses the runner's output. The returned error is non-nil only for a
// debug runner that stopped at a failing example.
func (r *Runner) Run(ctx context.Context, test *doctest.DocTest, sink io.Writer, opts ...RunOption) (Stats, error) {
	cfg := runConfig{clearEnv: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if sink == nil {
		sink = r.out
	}
	if test.Env == nil {
		test.Env = doctest.Environment{}
	}

	stats, err := r.run(ctx, test, sink)
	if err != nil {
		return stats, err
	}

	r.byName[test.Name] = r.byName[test.Name].Add(stats)
	r.totals = r.totals.Add(stats)
	if r.hooks.OnRunDone != nil {
		r.hooks.OnRunDone(ctx, RunEvent{Test: test, Stats: stats})
	}

	if cfg.clearEnv {
		if err := test.Env.Clear(); err != nil {
			r.logger.Warn("clear environment", "doctest", test.Name, "error", err)
		}
	}
	return stats, nil
}

func (r *Runner) run(ctx context.Context, test *doctest.DocTest, sink io.Writer) (Stats, error) {
	var stats Stats

	for _, ex := range test.Examples {
		quiet := r.flags.Has(option.ReportOnlyFirstFailure) && stats.Failed > 0
		flags := ex.Options.Apply(r.flags)

		if flags.Has(option.Skip) {
			r.logger.Debug("example skipped", "doctest", test.Name, "line", ex.Line+1)
			continue
		}

		stats.Attempted++
		if !quiet && r.verbose {
			r.report(sink, reportStart(ex))
		}
		if r.hooks.OnExampleStart != nil {
			r.hooks.OnExampleStart(ctx, ExampleEvent{Test: test, Example: ex})
		}

		res := r.execute(ctx, ex.Source, test.Env)
		if res.Env != nil {
			test.Env = res.Env
		}
		outcome, got := r.judge(ex, res, flags)

		r.logger.Debug("example done",
			"doctest", test.Name,
			"line", ex.Line+1,
			"outcome", outcome.String(),
			"duration", res.Duration,
		)
		if r.hooks.OnExampleDone != nil {
			r.hooks.OnExampleDone(ctx, ExampleEvent{
				Test: test, Example: ex, Outcome: outcome, Duration: res.Duration, Err: res.Error,
			})
		}

		switch outcome {
		case OutcomeSuccess:
			if !quiet && r.verbose {
				r.report(sink, "ok\n")
			}
		case OutcomeFailure:
			stats.Failed++
			if r.debug {
				return stats, &Failure{Test: test, Example: ex, Got: got}
			}
			if !quiet {
				r.report(sink, failureHeader(test, ex)+r.checker.Difference(ex, got, flags))
			}
		case OutcomeBoom:
			stats.Failed++
			if r.debug {
				return stats, &UnexpectedError{Test: test, Example: ex, Err: res.Error}
			}
			if !quiet {
				r.report(sink, failureHeader(test, ex)+"Exception raised:\n"+checker.Indent(describe(res.Error), 4))
			}
		}
	}
	return stats, nil
}

// execute calls the sandbox and turns a panic into an execution error.
func (r *Runner) execute(ctx context.Context, source string, env doctest.Environment) (res doctest.Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = doctest.Result{
				Env:      env,
				Error:    fmt.Errorf("sandbox panic: %v", p),
				Duration: time.Since(start),
			}
		}
	}()
	return r.sandbox.Execute(ctx, source, env)
}

// judge decides the outcome of an example and returns the text to show as
// its actual output.
func (r *Runner) judge(ex *doctest.Example, res doctest.Result, flags option.Flags) (Outcome, string) {
	got := res.Output
	if res.Error == nil {
		if r.checker.Match(ex.Want, got, flags) {
			return OutcomeSuccess, got
		}
		return OutcomeFailure, got
	}

	if ex.ExceptionMsg == nil {
		return OutcomeBoom, got
	}
	msg := res.Error.Error()
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	if r.checker.MatchException(*ex.ExceptionMsg, msg, flags) {
		return OutcomeSuccess, got
	}
	return OutcomeFailure, got + describe(res.Error)
}

func (r *Runner) report(sink io.Writer, text string) {
	if _, err := io.WriteString(sink, text); err != nil {
		r.logger.Warn("write report", "error", err)
	}
}
