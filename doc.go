// Package doctest runs the examples embedded in documentation and checks
// their output.
//
// # Overview
//
// Documentation text is split into examples by the [parser] package. Each
// example is a snippet written after a prompt, followed by the output the
// snippet is expected to print:
//
//	>>> x = 40 + 2
//	>>> print(x)
//	42
//
// A [DocTest] groups the examples of one documented artifact with a private
// [Environment]. The [runner] package executes the examples in order through
// a [Sandbox], compares output with the [checker] package and accumulates
// statistics.
//
// # Basic Usage
//
//	p := parser.New(parser.LuaSyntax(), option.NewRegistry())
//	test, err := p.DocTest(text, nil, "readme", doctest.Location{File: "README.md"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := runner.New(sandbox.NewLua())
//	stats, _ := r.Run(ctx, test, os.Stdout)
//	fmt.Println(stats.Failed, stats.Attempted)
//
// # Sandboxes
//
// The runner is agnostic to how snippets are evaluated. The [sandbox]
// package embeds a Lua interpreter; the [executor] package runs any WASI
// interpreter in wazero with a persistent session per environment.
//
// See the [option], [discovery] and [config] packages for flag handling,
// discovery of documented artifacts and project configuration.
package doctest
