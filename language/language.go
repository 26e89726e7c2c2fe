// Package language holds command lines for WASI interpreters that are
// commonly used as doctest sandboxes.
//
// A preset only describes how to invoke an interpreter; the module itself
// is always loaded from disk.
package language

import (
	"fmt"
	"sort"

	"github.com/caffeineduck/doctest/executor"
)

// Preset describes one interpreter.
type Preset struct {
	// Name keys the compiled module cache.
	Name string
	// Argv is the interpreter command line with executor.CodePlaceholder
	// where the snippet goes.
	Argv []string
	// Syntax names the parser.Syntax its transcripts are written in.
	Syntax string
}

var presets = map[string]Preset{
	"python": {
		Name:   "python",
		Argv:   []string{"python", "-c", executor.CodePlaceholder},
		Syntax: "python",
	},
	"javascript": {
		Name:   "javascript",
		Argv:   []string{"qjs", "--std", "-e", executor.CodePlaceholder},
		Syntax: "lua",
	},
	"php": {
		Name:   "php",
		Argv:   []string{"php", "-r", executor.CodePlaceholder},
		Syntax: "php",
	},
	"lua": {
		Name:   "lua",
		Argv:   []string{"lua", "-e", executor.CodePlaceholder},
		Syntax: "lua",
	},
}

var aliases = map[string]string{
	"py": "python",
	"js": "javascript",
}

// Lookup returns the preset called name or one of its aliases.
func Lookup(name string) (Preset, bool) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, false
	}
	p.Argv = append([]string(nil), p.Argv...)
	return p, true
}

// Names lists the presets in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the interpreter module at path. A non-empty argv replaces the
// preset's command line.
func (p Preset) Load(path string, argv []string) (*executor.ModuleLanguage, error) {
	if len(argv) == 0 {
		argv = p.Argv
	}
	lang, err := executor.LoadModule(p.Name, path, argv)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return lang, nil
}
