// Package option defines the named toggles that control output matching
// and failure reporting.
//
// Flags are plain bits. A [Registry] maps names to bits and is immutable
// once built, so one value can be shared by the parser, checker and runner
// without any package-level state.
package option

import (
	"fmt"
	"sort"
	"strings"
)

// Flags is a set of option bits.
type Flags uint32

const (
	DontAcceptTrueFor1 Flags = 1 << iota
	DontAcceptBlankline
	NormalizeWhitespace
	Ellipsis
	Skip
	IgnoreExceptionDetail
	ReportUDiff
	ReportNDiff
	ReportCDiff
	ReportOnlyFirstFailure
)

// ComparisonFlags groups the flags that change how output is compared.
const ComparisonFlags = DontAcceptTrueFor1 | DontAcceptBlankline | NormalizeWhitespace |
	Ellipsis | Skip | IgnoreExceptionDetail

// ReportingFlags groups the flags that change how failures are reported.
const ReportingFlags = ReportUDiff | ReportCDiff | ReportNDiff | ReportOnlyFirstFailure

// Has reports whether every bit of f is set in s.
func (s Flags) Has(f Flags) bool { return s&f == f && f != 0 }

// With returns s with f set.
func (s Flags) With(f Flags) Flags { return s | f }

// Without returns s with f cleared.
func (s Flags) Without(f Flags) Flags { return s &^ f }

// String renders the set using the built-in names, e.g. "ELLIPSIS|SKIP".
func (s Flags) String() string {
	if s == 0 {
		return "0"
	}
	var parts []string
	for _, n := range builtin {
		if s&n.Flag != 0 {
			parts = append(parts, n.Name)
			s &^= n.Flag
		}
	}
	if s != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(s)))
	}
	return strings.Join(parts, "|")
}

// Overrides holds explicit per-example settings. A true value turns the
// flag on for that example, false turns it off.
type Overrides map[Flags]bool

// Apply layers o over base.
func (o Overrides) Apply(base Flags) Flags {
	for f, on := range o {
		if on {
			base |= f
		} else {
			base &^= f
		}
	}
	return base
}

// Named pairs a flag with its directive name.
type Named struct {
	Name string
	Flag Flags
}

var builtin = []Named{
	{"DONT_ACCEPT_TRUE_FOR_1", DontAcceptTrueFor1},
	{"DONT_ACCEPT_BLANKLINE", DontAcceptBlankline},
	{"NORMALIZE_WHITESPACE", NormalizeWhitespace},
	{"ELLIPSIS", Ellipsis},
	{"SKIP", Skip},
	{"IGNORE_EXCEPTION_DETAIL", IgnoreExceptionDetail},
	{"REPORT_UDIFF", ReportUDiff},
	{"REPORT_NDIFF", ReportNDiff},
	{"REPORT_CDIFF", ReportCDiff},
	{"REPORT_ONLY_FIRST_FAILURE", ReportOnlyFirstFailure},
}

// namePrefix is accepted in front of any flag name and ignored.
const namePrefix = "DOCTEST_"

// Registry maps directive names to flags.
type Registry struct {
	byName map[string]Flags
	byFlag map[Flags]string
	names  []string
}

// NewRegistry returns a registry holding the built-in flags plus extra.
// Extra entries may alias built-in bits or introduce new ones; a name that
// is already taken is replaced.
func NewRegistry(extra ...Named) *Registry {
	r := &Registry{
		byName: make(map[string]Flags, len(builtin)+len(extra)),
		byFlag: make(map[Flags]string, len(builtin)+len(extra)),
	}
	for _, n := range append(append([]Named(nil), builtin...), extra...) {
		if _, dup := r.byName[n.Name]; !dup {
			r.names = append(r.names, n.Name)
		}
		r.byName[n.Name] = n.Flag
		if _, ok := r.byFlag[n.Flag]; !ok {
			r.byFlag[n.Flag] = n.Name
		}
	}
	return r
}

// Lookup returns the flag registered under name.
func (r *Registry) Lookup(name string) (Flags, bool) {
	f, ok := r.byName[strings.TrimPrefix(name, namePrefix)]
	return f, ok
}

// Name returns the registered name of a single flag.
func (r *Registry) Name(f Flags) string {
	if n, ok := r.byFlag[f]; ok {
		return n
	}
	return f.String()
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Parse reads a list of flag names separated by commas or whitespace.
// Each name may carry a sign: "+NAME" or a bare "NAME" sets the flag and
// "-NAME" clears it.
func (r *Registry) Parse(list string) (Overrides, error) {
	out := Overrides{}
	for _, tok := range strings.Fields(strings.ReplaceAll(list, ",", " ")) {
		on := true
		name := tok
		switch tok[0] {
		case '+':
			name = tok[1:]
		case '-':
			on = false
			name = tok[1:]
		}
		f, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown option %q", tok)
		}
		out[f] = on
	}
	return out, nil
}

// Describe renders overrides as a sorted directive list, e.g.
// "+ELLIPSIS -SKIP".
func (r *Registry) Describe(o Overrides) string {
	parts := make([]string, 0, len(o))
	for f, on := range o {
		sign := "-"
		if on {
			sign = "+"
		}
		parts = append(parts, sign+r.Name(f))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
