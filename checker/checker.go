// Package checker decides whether the output of an example matches what
// its documentation expects, and renders differences when it does not.
package checker

import (
	"regexp"
	"strings"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/option"
)

const (
	// BlankLineMarker stands for an empty line in expected output.
	BlankLineMarker = "<BLANKLINE>"
	// EllipsisMarker matches any substring when ELLIPSIS is set.
	EllipsisMarker = "..."
)

var (
	blankMarkerLine = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(BlankLineMarker) + `[ \t]*$`)
	whitespaceLine  = regexp.MustCompile(`(?m)^[^\S\n]+$`)
)

// Checker compares expected and actual output. The zero value is ready to
// use.
type Checker struct{}

// New returns a Checker.
func New() *Checker { return &Checker{} }

// Match reports whether got satisfies want under flags. The rules are
// tried in order and the first success wins: exact equality, True/1 and
// False/0 equivalence, blank-line markers, whitespace normalization and
// ellipsis matching.
func (c *Checker) Match(want, got string, flags option.Flags) bool {
	if got == want {
		return true
	}

	if !flags.Has(option.DontAcceptTrueFor1) {
		if (got == "True\n" && want == "1\n") || (got == "False\n" && want == "0\n") {
			return true
		}
	}

	if !flags.Has(option.DontAcceptBlankline) {
		want = blankMarkerLine.ReplaceAllString(want, "")
		got = whitespaceLine.ReplaceAllString(got, "")
		if got == want {
			return true
		}
	}

	if flags.Has(option.NormalizeWhitespace) {
		got = strings.Join(strings.Fields(got), " ")
		want = strings.Join(strings.Fields(want), " ")
		if got == want {
			return true
		}
	}

	if flags.Has(option.Ellipsis) {
		if EllipsisMatch(want, got) {
			return true
		}
	}

	return false
}

// MatchException compares an expected error message with the message
// actually raised. With IGNORE_EXCEPTION_DETAIL set and a ':' in both
// messages, only the text up to the first ':' must match.
func (c *Checker) MatchException(want, got string, flags option.Flags) bool {
	if c.Match(want, got, flags) {
		return true
	}
	if !flags.Has(option.IgnoreExceptionDetail) {
		return false
	}
	w, okw := exceptionHead(want)
	g, okg := exceptionHead(got)
	if !okw || !okg {
		return false
	}
	return c.Match(w, g, flags)
}

func exceptionHead(msg string) (string, bool) {
	i := strings.IndexByte(msg, ':')
	if i < 0 {
		return "", false
	}
	return msg[:i+1], true
}

// EllipsisMatch reports whether got matches want, where each "..." in want
// matches any substring of got.
func EllipsisMatch(want, got string) bool {
	if !strings.Contains(want, EllipsisMarker) {
		return want == got
	}

	ws := strings.Split(want, EllipsisMarker)
	startpos, endpos := 0, len(got)

	if w := ws[0]; w != "" {
		if !strings.HasPrefix(got, w) {
			return false
		}
		startpos = len(w)
		ws = ws[1:]
	}
	if w := ws[len(ws)-1]; w != "" {
		if !strings.HasSuffix(got, w) {
			return false
		}
		endpos -= len(w)
		ws = ws[:len(ws)-1]
	}

	if startpos > endpos {
		// The prefix and suffix overlap.
		return false
	}

	for _, w := range ws {
		i := strings.Index(got[startpos:endpos], w)
		if i < 0 {
			return false
		}
		startpos += i + len(w)
	}
	return true
}

// Difference describes how got differs from the example's expected output.
func (c *Checker) Difference(ex *doctest.Example, got string, flags option.Flags) string {
	want := ex.Want

	if !flags.Has(option.DontAcceptBlankline) {
		got = markBlankLines(got)
	}

	if fancyDiff(want, got, flags) {
		return richDiff(want, got, flags)
	}

	switch {
	case want != "" && got != "":
		return "Expected:\n" + Indent(want, 4) + "Got:\n" + Indent(got, 4)
	case want != "":
		return "Expected:\n" + Indent(want, 4) + "Got nothing\n"
	case got != "":
		return "Expected nothing\nGot:\n" + Indent(got, 4)
	default:
		return "Expected nothing\nGot nothing\n"
	}
}

// markBlankLines replaces every whitespace-only line that is followed by
// a newline with the blank-line marker.
func markBlankLines(got string) string {
	lines := strings.Split(got, "\n")
	for i := 0; i < len(lines)-1; i++ {
		if strings.Trim(lines[i], " ") == "" {
			lines[i] = BlankLineMarker
		}
	}
	return strings.Join(lines, "\n")
}

// Indent prefixes every non-empty line of s with n spaces.
func Indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		if l != "\n" {
			b.WriteString(pad)
		}
		b.WriteString(l)
	}
	return b.String()
}
