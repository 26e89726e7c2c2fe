package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Syntax describes the tokens that mark examples in documentation text.
type Syntax struct {
	// Prompt starts the first line of an example's source.
	Prompt string
	// Continuation starts each further source line. Empty disables
	// multi-line sources.
	Continuation string
	// CommentMarkers start single-line comments in the snippet language.
	CommentMarkers []string
	// DirectiveKeyword follows a comment marker to introduce option
	// directives.
	DirectiveKeyword string
	// Exception matches an expected error report beginning at any line of
	// an example's expected output. The "msg" group is the expected
	// message. Nil disables error expectations.
	Exception *regexp.Regexp
	// ErrorReport renders an error message in the form Exception matches;
	// its single %s receives the message.
	ErrorReport string
}

const directiveKeyword = "doctest:"

var (
	pythonException = regexp.MustCompile(`(?ms)^(?P<hdr>Traceback \((?:most recent call last|innermost last)\):)[ \t]*$(?P<stack>.*?)^(?P<msg>\w+.*)`)

	phpException = regexp.MustCompile(`(?ms)^(?P<hdr>PHP Fatal error:\s+Uncaught exception '(?P<type>\w+)' with message '(?P<msg>\w+.*?)' in (?P<loc>[^:\n]+):(?P<line>\d+))[ \t]*$\n?Stack trace:[ \t]*$\n?(?P<stack>.*)\s+thrown in (?P<loc2>[^\n]+?) on line (?P<line2>\d+)$`)

	luaException = regexp.MustCompile(`(?ms)^(?P<hdr>error:)[ \t]*(?P<msg>\S.*)`)
)

// PythonSyntax uses ">>>" and "..." prompts, "#" comments and a traceback
// header for expected errors.
func PythonSyntax() Syntax {
	return Syntax{
		Prompt:           ">>>",
		Continuation:     "...",
		CommentMarkers:   []string{"#", "//"},
		DirectiveKeyword: directiveKeyword,
		Exception:        pythonException,
		ErrorReport:      "Traceback (most recent call last):\n  ...\n%s\n",
	}
}

// PHPSyntax uses the "php >" and "php {" prompts of the interactive PHP
// shell and its uncaught-exception report.
func PHPSyntax() Syntax {
	return Syntax{
		Prompt:           "php >",
		Continuation:     "php {",
		CommentMarkers:   []string{"#", "//"},
		DirectiveKeyword: directiveKeyword,
		Exception:        phpException,
		ErrorReport: "PHP Fatal error:  Uncaught exception 'Exception' with message '%s' in php shell code:1\n" +
			"Stack trace:\n#0 {main}\n  thrown in php shell code on line 1\n",
	}
}

// LuaSyntax uses the stand-alone Lua interpreter prompts "> " and ">> ".
// Expected errors are written as "error: message".
func LuaSyntax() Syntax {
	return Syntax{
		Prompt:           ">",
		Continuation:     ">>",
		CommentMarkers:   []string{"--", "//"},
		DirectiveKeyword: directiveKeyword,
		Exception:        luaException,
		ErrorReport:      "error: %s\n",
	}
}

// FormatError renders msg as an expected error report. Without an
// ErrorReport the message is returned on its own line.
func (s Syntax) FormatError(msg string) string {
	msg = strings.TrimSuffix(msg, "\n")
	if s.ErrorReport == "" {
		return msg + "\n"
	}
	return fmt.Sprintf(s.ErrorReport, msg)
}

// SyntaxByName returns a preset by name: "python", "php" or "lua".
func SyntaxByName(name string) (Syntax, bool) {
	switch name {
	case "python", "py":
		return PythonSyntax(), true
	case "php":
		return PHPSyntax(), true
	case "lua":
		return LuaSyntax(), true
	}
	return Syntax{}, false
}
