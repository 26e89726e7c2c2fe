package runner

import (
	"fmt"

	"github.com/caffeineduck/doctest"
)

// Failure is returned by a debug runner when an example's output does not
// match its expected output.
type Failure struct {
	Test    *doctest.DocTest
	Example *doctest.Example
	Got     string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: example at line %d produced unexpected output", f.Test.Name, f.Example.Line+1)
}

// UnexpectedError is returned by a debug runner when an example raised an
// error it did not expect.
type UnexpectedError struct {
	Test    *doctest.DocTest
	Example *doctest.Example
	Err     error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: example at line %d raised: %v", e.Test.Name, e.Example.Line+1, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }
