package executor

import (
	"fmt"
	"os"
	"strings"
)

// Language defines a WASI interpreter the executor can run snippets in.
type Language interface {
	// Name identifies the language and keys the compiled module cache.
	Name() string

	// Module returns the WASM binary of the interpreter.
	Module() []byte

	// WrapCode prepares a snippet for execution, typically by prepending
	// the host function bindings.
	WrapCode(code string) string

	// Args returns the command line passed to the module.
	Args(wrappedCode string) []string

	// SessionInit returns code that switches the prelude into the session
	// loop, where snippets arrive as JSON lines on stdin.
	SessionInit() string
}

// CodePlaceholder in ModuleLanguage.Argv is replaced by the wrapped code.
const CodePlaceholder = "{code}"

// ModuleLanguage is a Language whose interpreter is loaded from disk.
type ModuleLanguage struct {
	LangName string
	Argv     []string
	// Prelude is prepended to every snippet.
	Prelude string
	// SessionPrelude is prepended once when a session starts.
	SessionPrelude string

	module []byte
}

// LoadModule reads the interpreter at path. Argv is the command line; an
// element equal to CodePlaceholder receives the code, otherwise the code
// is appended.
func LoadModule(name, path string, argv []string) (*ModuleLanguage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s module: %w", name, err)
	}
	return &ModuleLanguage{LangName: name, Argv: argv, module: data}, nil
}

// NewModuleLanguage wraps an interpreter already in memory.
func NewModuleLanguage(name string, module []byte, argv []string) *ModuleLanguage {
	return &ModuleLanguage{LangName: name, Argv: argv, module: module}
}

// LoadPreludes reads Prelude and SessionPrelude from the given files. An
// empty path leaves the corresponding prelude unchanged.
func (l *ModuleLanguage) LoadPreludes(prelude, session string) error {
	for _, p := range []struct {
		path string
		dst  *string
	}{
		{prelude, &l.Prelude},
		{session, &l.SessionPrelude},
	} {
		if p.path == "" {
			continue
		}
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("load %s prelude: %w", l.LangName, err)
		}
		*p.dst = string(data)
	}
	return nil
}

func (l *ModuleLanguage) Name() string   { return l.LangName }
func (l *ModuleLanguage) Module() []byte { return l.module }

func (l *ModuleLanguage) WrapCode(code string) string {
	if l.Prelude == "" {
		return code
	}
	return l.Prelude + "\n" + code
}

func (l *ModuleLanguage) Args(wrappedCode string) []string {
	args := make([]string, 0, len(l.Argv)+1)
	placed := false
	for _, a := range l.Argv {
		if a == CodePlaceholder {
			args = append(args, wrappedCode)
			placed = true
			continue
		}
		args = append(args, a)
	}
	if !placed && strings.TrimSpace(wrappedCode) != "" {
		args = append(args, wrappedCode)
	}
	return args
}

func (l *ModuleLanguage) SessionInit() string { return l.SessionPrelude }
