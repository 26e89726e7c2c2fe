package doctest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caffeineduck/doctest/option"
)

// UnknownLine marks a location whose line number is not known.
const UnknownLine = -1

// Location identifies where a DocTest's text came from. Line is 0-based.
type Location struct {
	File string
	Line int
}

// Example is a single snippet with its expected output.
type Example struct {
	// Source always ends with a newline.
	Source string
	// Want is empty or ends with a newline.
	Want string
	// ExceptionMsg is set when Want declares an error report; it ends with
	// a newline.
	ExceptionMsg *string
	// Line is the 0-based line of the prompt within the DocTest text.
	Line int
	// Indent is the column of the prompt in the original text.
	Indent int
	// Options holds the example's directive overrides.
	Options option.Overrides
}

// DocTest is a named collection of examples sharing one environment.
type DocTest struct {
	Examples []*Example
	Env      Environment
	Name     string
	Location Location
	Text     string
}

func (t *DocTest) String() string {
	var n string
	switch len(t.Examples) {
	case 0:
		n = "no examples"
	case 1:
		n = "1 example"
	default:
		n = fmt.Sprintf("%d examples", len(t.Examples))
	}
	file := t.Location.File
	if file == "" {
		file = "unknown"
	}
	return fmt.Sprintf("<DocTest %s from %s:%d (%s)>", t.Name, file, t.Location.Line, n)
}

// Environment maps names to values visible to executed snippets.
type Environment map[string]any

// Clone returns a shallow copy of e. A nil receiver yields an empty map.
func (e Environment) Clone() Environment {
	out := make(Environment, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Clear removes every binding. Bindings that implement io.Closer are
// closed and their errors joined.
func (e Environment) Clear() error {
	var errs []error
	for k, v := range e {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", k, err))
			}
		}
		delete(e, k)
	}
	return errors.Join(errs...)
}

// Result is the outcome of executing one snippet.
type Result struct {
	// Env is the environment after execution.
	Env Environment
	// Output is everything the snippet printed.
	Output string
	// Error is set when the snippet raised an error.
	Error    error
	Duration time.Duration
}

// Sandbox evaluates snippets. Execute must be synchronous and must not let
// snippet output escape anywhere but Result.Output.
type Sandbox interface {
	Execute(ctx context.Context, source string, env Environment) Result
}

// SandboxFunc adapts a function to the Sandbox interface.
type SandboxFunc func(ctx context.Context, source string, env Environment) Result

func (f SandboxFunc) Execute(ctx context.Context, source string, env Environment) Result {
	return f(ctx, source, env)
}

// Traceback is implemented by errors that carry a longer description than
// their message, such as an interpreter stack trace.
type Traceback interface {
	Traceback() string
}
