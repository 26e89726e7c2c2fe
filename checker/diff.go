package checker

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/caffeineduck/doctest/option"
)

const diffContext = 2

// fancyDiff reports whether a rich diff should replace the plain
// expected/got rendering.
func fancyDiff(want, got string, flags option.Flags) bool {
	if flags&(option.ReportUDiff|option.ReportCDiff|option.ReportNDiff) == 0 {
		return false
	}
	if flags.Has(option.ReportNDiff) {
		return true
	}
	return strings.Count(want, "\n") > 2 && strings.Count(got, "\n") > 2
}

func richDiff(want, got string, flags option.Flags) string {
	a, b := splitLines(want), splitLines(got)

	var kind string
	var lines []string
	switch {
	case flags.Has(option.ReportUDiff):
		kind = "unified diff with -expected +actual"
		text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A: a, B: b, FromFile: "expected", ToFile: "actual", Context: diffContext,
		})
		lines = dropHeader(splitLines(text), "--- ", "+++ ")
	case flags.Has(option.ReportCDiff):
		kind = "context diff with expected followed by actual"
		text, _ := difflib.GetContextDiffString(difflib.ContextDiff{
			A: a, B: b, FromFile: "expected", ToFile: "actual", Context: diffContext,
		})
		lines = dropHeader(splitLines(text), "*** ", "--- ")
	default:
		kind = "ndiff with -expected +actual"
		lines = ndiff(a, b)
	}

	var body strings.Builder
	for _, l := range lines {
		body.WriteString(strings.TrimRight(l, " \t\r\n"))
		body.WriteByte('\n')
	}
	return "Differences (" + kind + "):\n" + Indent(body.String(), 4)
}

// ndiff lists every line of a and b prefixed by "- ", "+ " or two spaces.
func ndiff(a, b []string) []string {
	var out []string
	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, l := range a[op.I1:op.I2] {
				out = append(out, "  "+l)
			}
		case 'd':
			for _, l := range a[op.I1:op.I2] {
				out = append(out, "- "+l)
			}
		case 'i':
			for _, l := range b[op.J1:op.J2] {
				out = append(out, "+ "+l)
			}
		case 'r':
			for _, l := range a[op.I1:op.I2] {
				out = append(out, "- "+l)
			}
			for _, l := range b[op.J1:op.J2] {
				out = append(out, "+ "+l)
			}
		}
	}
	return out
}

// dropHeader removes the two file header lines a diff starts with.
func dropHeader(lines []string, from, to string) []string {
	if len(lines) >= 2 && strings.HasPrefix(lines[0], from) && strings.HasPrefix(lines[1], to) {
		return lines[2:]
	}
	return lines
}

// splitLines splits s after each newline, keeping the newlines.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
