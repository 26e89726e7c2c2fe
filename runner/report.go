package runner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/checker"
)

var divider = strings.Repeat("*", 70)

func reportStart(ex *doctest.Example) string {
	if ex.Want == "" {
		return "Trying:\n" + checker.Indent(ex.Source, 4) + "Expecting nothing\n"
	}
	return "Trying:\n" + checker.Indent(ex.Source, 4) + "Expecting:\n" + checker.Indent(ex.Want, 4)
}

// failureHeader locates ex within its DocTest and repeats its source.
func failureHeader(test *doctest.DocTest, ex *doctest.Example) string {
	var b strings.Builder
	b.WriteString(divider)
	b.WriteByte('\n')

	if test.Location.File != "" {
		line := "?"
		if test.Location.Line != doctest.UnknownLine {
			line = strconv.Itoa(test.Location.Line + ex.Line + 1)
		}
		fmt.Fprintf(&b, "File \"%s\", line %s, in %s\n", test.Location.File, line, test.Name)
	} else {
		fmt.Fprintf(&b, "Line %d, in %s\n", ex.Line+1, test.Name)
	}

	b.WriteString("Failed example:\n")
	b.WriteString(checker.Indent(ex.Source, 4))
	return b.String()
}

// describe renders an execution error, preferring the sandbox's traceback.
func describe(err error) string {
	var text string
	var tb doctest.Traceback
	if errors.As(err, &tb) {
		text = tb.Traceback()
	} else {
		text = err.Error()
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}
