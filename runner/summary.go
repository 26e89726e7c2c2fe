package runner

import (
	"fmt"
	"io"
	"sort"
)

// Tally pairs a DocTest name with its accumulated statistics.
type Tally struct {
	Name string `json:"name"`
	Stats
}

// Summary groups every DocTest the runner has seen.
type Summary struct {
	NoTests []string `json:"no_tests"`
	Passed  []Tally  `json:"passed"`
	Failed  []Tally  `json:"failed"`
	Total   Stats    `json:"total"`
}

// Summary returns the accumulated statistics grouped by outcome, each
// group sorted by name.
func (r *Runner) Summary() Summary {
	var s Summary
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := r.byName[name]
		switch {
		case st.Attempted == 0:
			s.NoTests = append(s.NoTests, name)
		case st.Failed == 0:
			s.Passed = append(s.Passed, Tally{Name: name, Stats: st})
		default:
			s.Failed = append(s.Failed, Tally{Name: name, Stats: st})
		}
	}
	s.Total = r.totals
	return s
}

// Summarize writes a summary of every run to the runner's output and
// returns the totals. Passing DocTests are only listed when verbose.
func (r *Runner) Summarize(verbose bool) Stats {
	WriteSummary(r.out, r.Summary(), verbose)
	return r.totals
}

// WriteSummary renders s in the classic doctest summary layout.
func WriteSummary(w io.Writer, s Summary, verbose bool) {
	if verbose {
		if len(s.NoTests) > 0 {
			fmt.Fprintf(w, "%d items had no tests:\n", len(s.NoTests))
			for _, name := range s.NoTests {
				fmt.Fprintf(w, "    %s\n", name)
			}
		}
		if len(s.Passed) > 0 {
			fmt.Fprintf(w, "%d items passed all tests:\n", len(s.Passed))
			for _, t := range s.Passed {
				fmt.Fprintf(w, " %3d tests in %s\n", t.Attempted, t.Name)
			}
		}
	}
	if len(s.Failed) > 0 {
		fmt.Fprintln(w, divider)
		fmt.Fprintf(w, "%d items had failures:\n", len(s.Failed))
		for _, t := range s.Failed {
			fmt.Fprintf(w, " %3d of %3d in %s\n", t.Failed, t.Attempted, t.Name)
		}
	}
	if verbose {
		items := len(s.NoTests) + len(s.Passed) + len(s.Failed)
		fmt.Fprintf(w, "%d tests in %d items.\n", s.Total.Attempted, items)
		fmt.Fprintf(w, "%d passed and %d failed.\n", s.Total.Attempted-s.Total.Failed, s.Total.Failed)
	}
	if s.Total.Failed > 0 {
		fmt.Fprintf(w, "***Test Failed*** %d failures.\n", s.Total.Failed)
	} else if verbose {
		fmt.Fprintln(w, "Test passed.")
	}
}
