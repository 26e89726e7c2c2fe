// Package parser extracts examples from documentation text.
//
// An example starts with a prompt line, continues with zero or more
// continuation lines and is followed by its expected output: the
// non-blank lines up to the next prompt or blank line.
//
//	>>> total = 0
//	>>> for i in range(3):
//	...     total += i
//	>>> total
//	3
//
// Option directives inside an example's source override matching flags
// for that example only:
//
//	>>> print(list(range(20)))  # doctest: +ELLIPSIS
//	[0, 1, ..., 19]
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/option"
)

const tabWidth = 8

// ParseError reports a malformed example.
type ParseError struct {
	// Name identifies the parsed text.
	Name string
	// Line is the 1-based line of the problem within the text.
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d of the doctest for %s %s", e.Line, e.Name, e.Msg)
}

// Piece is either a run of literal text or an example.
type Piece struct {
	Text    string
	Example *doctest.Example
}

// Parser splits documentation text into examples. It holds no mutable
// state and may be shared.
type Parser struct {
	syntax    Syntax
	registry  *option.Registry
	directive *regexp.Regexp
}

// New returns a parser for syntax that resolves directive names through
// registry.
func New(syntax Syntax, registry *option.Registry) (*Parser, error) {
	if syntax.Prompt == "" {
		return nil, errors.New("prompt token required")
	}
	if strings.TrimSpace(syntax.Prompt) != syntax.Prompt {
		return nil, fmt.Errorf("prompt %q has surrounding whitespace", syntax.Prompt)
	}
	if syntax.Exception != nil && syntax.Exception.SubexpIndex("msg") < 0 {
		return nil, errors.New(`exception pattern lacks a "msg" group`)
	}
	if registry == nil {
		registry = option.NewRegistry()
	}
	if syntax.DirectiveKeyword == "" {
		syntax.DirectiveKeyword = directiveKeyword
	}

	p := &Parser{syntax: syntax, registry: registry}
	if len(syntax.CommentMarkers) > 0 {
		markers := make([]string, len(syntax.CommentMarkers))
		for i, m := range syntax.CommentMarkers {
			markers[i] = regexp.QuoteMeta(m)
		}
		p.directive = regexp.MustCompile(`(?:` + strings.Join(markers, "|") + `)\s*` +
			regexp.QuoteMeta(syntax.DirectiveKeyword) + `\s*([^\n'"]*)$`)
	}
	return p, nil
}

// MustNew is like New but panics on error.
func MustNew(syntax Syntax, registry *option.Registry) *Parser {
	p, err := New(syntax, registry)
	if err != nil {
		panic(err)
	}
	return p
}

// Syntax returns the parser's token set.
func (p *Parser) Syntax() Syntax { return p.syntax }

// DocTest parses text and wraps the examples in a DocTest whose
// environment is a copy of globals.
func (p *Parser) DocTest(text string, globals doctest.Environment, name string, loc doctest.Location) (*doctest.DocTest, error) {
	examples, err := p.Examples(text, name)
	if err != nil {
		return nil, err
	}
	return &doctest.DocTest{
		Examples: examples,
		Env:      globals.Clone(),
		Name:     name,
		Location: loc,
		Text:     text,
	}, nil
}

// Examples returns only the examples found in text.
func (p *Parser) Examples(text, name string) ([]*doctest.Example, error) {
	pieces, err := p.Parse(text, name)
	if err != nil {
		return nil, err
	}
	var out []*doctest.Example
	for _, pc := range pieces {
		if pc.Example != nil {
			out = append(out, pc.Example)
		}
	}
	return out, nil
}

// Parse splits text into literal pieces and examples, in order. Examples
// whose source is only blanks or comments are dropped. Line numbers are
// 0-based. name is used in error messages.
func (p *Parser) Parse(text, name string) ([]Piece, error) {
	text = strings.ReplaceAll(text, "\t", strings.Repeat(" ", tabWidth))
	minIndent := minIndent(text)
	if minIndent > 0 {
		text = dedent(text, minIndent)
	}

	lines := strings.Split(text, "\n")
	starts := make([]int, len(lines)+1)
	for i, l := range lines {
		starts[i+1] = starts[i] + len(l) + 1
	}
	offset := func(line int) int {
		if line >= len(lines) {
			return len(text)
		}
		return starts[line]
	}

	var out []Piece
	charno := 0
	for i := 0; i < len(lines); {
		indent, rest := splitIndent(lines[i])
		if !isMarked(rest, p.syntax.Prompt) {
			i++
			continue
		}

		if start := offset(i); start > charno {
			out = append(out, Piece{Text: text[charno:start]})
		}

		ex, end, err := p.parseBlock(lines, i, indent, name)
		if err != nil {
			return nil, err
		}
		if ex != nil {
			ex.Indent = minIndent + indent
			out = append(out, Piece{Example: ex})
		}
		charno = offset(end)
		i = end
	}
	if charno < len(text) {
		out = append(out, Piece{Text: text[charno:]})
	}
	return out, nil
}

// parseBlock reads the example whose prompt is on line first and returns
// it with the index of the first line after it. A nil example means the
// source held nothing to run.
func (p *Parser) parseBlock(lines []string, first, indent int, name string) (*doctest.Example, int, error) {
	prompt, cont := p.syntax.Prompt, p.syntax.Continuation

	source := []string{strings.TrimPrefix(lines[first][indent+len(prompt):], " ")}

	i := first + 1
	for ; cont != "" && i < len(lines); i++ {
		ind, rest := splitIndent(lines[i])
		if !isMarked(rest, cont) {
			break
		}
		if ind != indent {
			return nil, 0, &ParseError{Name: name, Line: i + 1, Msg: fmt.Sprintf("has inconsistent leading whitespace: %q", lines[i])}
		}
		source = append(source, strings.TrimPrefix(rest[len(cont):], " "))
	}

	var want []string
	for ; i < len(lines); i++ {
		ind, rest := splitIndent(lines[i])
		if rest == "" || isMarked(rest, prompt) {
			break
		}
		if ind < indent {
			return nil, 0, &ParseError{Name: name, Line: i + 1, Msg: fmt.Sprintf("has inconsistent leading whitespace: %q", lines[i])}
		}
		want = append(want, lines[i][indent:])
	}

	opts, err := p.findOptions(source, name, first)
	if err != nil {
		return nil, 0, err
	}
	if p.isBlankOrComment(source) {
		if len(opts) > 0 {
			return nil, 0, &ParseError{
				Name: name,
				Line: first + 1,
				Msg:  fmt.Sprintf("has an option directive on a line with no example: %q", strings.Join(source, "\n")),
			}
		}
		return nil, i, nil
	}

	ex := &doctest.Example{
		Source:  strings.Join(source, "\n") + "\n",
		Line:    first,
		Options: opts,
	}
	if len(want) > 0 {
		ex.Want = strings.Join(want, "\n") + "\n"
		ex.ExceptionMsg = p.exceptionMessage(ex.Want)
	}
	return ex, i, nil
}

// findOptions collects the directive overrides of one example.
func (p *Parser) findOptions(source []string, name string, first int) (option.Overrides, error) {
	if p.directive == nil {
		return nil, nil
	}
	var opts option.Overrides
	for n, line := range source {
		m := p.directive.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, tok := range strings.Fields(strings.ReplaceAll(m[1], ",", " ")) {
			f, ok := p.registry.Lookup(tok[1:])
			if (tok[0] != '+' && tok[0] != '-') || !ok {
				return nil, &ParseError{Name: name, Line: first + n + 1, Msg: "has an invalid option: " + tok}
			}
			if opts == nil {
				opts = option.Overrides{}
			}
			opts[f] = tok[0] == '+'
		}
	}
	return opts, nil
}

func (p *Parser) isBlankOrComment(source []string) bool {
	for _, line := range source {
		line = strings.TrimLeft(line, " ")
		if line == "" {
			continue
		}
		comment := false
		for _, m := range p.syntax.CommentMarkers {
			if strings.HasPrefix(line, m) {
				comment = true
				break
			}
		}
		if !comment {
			return false
		}
	}
	return true
}

// exceptionMessage extracts the message of an error report found at any
// line start of want; output printed before the report is allowed.
func (p *Parser) exceptionMessage(want string) *string {
	if p.syntax.Exception == nil {
		return nil
	}
	m := p.syntax.Exception.FindStringSubmatchIndex(want)
	if m == nil || (m[0] > 0 && want[m[0]-1] != '\n') {
		return nil
	}
	i := p.syntax.Exception.SubexpIndex("msg")
	if m[2*i] < 0 {
		return nil
	}
	msg := want[m[2*i]:m[2*i+1]]
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return &msg
}

// isMarked reports whether line starts with token followed by a blank or
// the end of the line.
func isMarked(line, token string) bool {
	if !strings.HasPrefix(line, token) {
		return false
	}
	return len(line) == len(token) || line[len(token)] == ' '
}

func splitIndent(line string) (int, string) {
	rest := strings.TrimLeft(line, " ")
	return len(line) - len(rest), rest
}

func minIndent(text string) int {
	min := -1
	for _, line := range strings.Split(text, "\n") {
		ind, rest := splitIndent(line)
		if rest == "" {
			continue
		}
		if min < 0 || ind < min {
			min = ind
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func dedent(text string, n int) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if len(l) >= n {
			lines[i] = l[n:]
		} else {
			lines[i] = strings.TrimLeft(l, " ")
		}
	}
	return strings.Join(lines, "\n")
}
