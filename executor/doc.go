// Package executor runs documentation snippets inside WASI interpreters
// compiled to WebAssembly.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution.
// It supports both stateless execution (single Run call) and stateful
// sessions (multiple Run calls with persistent state). Interpreters are
// supplied through the [Language] interface; [LoadModule] reads one from
// disk.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	lang, err := executor.LoadModule("python", "python.wasm", []string{"python", "-c", executor.CodePlaceholder})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := exec.Run(ctx, lang, `print("hello")`)
//
// # Sessions
//
// A [Session] keeps one interpreter alive. The host writes each snippet as
// a JSON line on stdin; the interpreter answers on stderr with
// \x00GORU_DONE\x00 or \x00GORU_ERROR:message\x00, and announces itself
// with \x00GORU_READY\x00 once started.
//
// # Doctest Integration
//
// [Executor.Sandbox] turns a language into a doctest sandbox where every
// DocTest environment owns a session:
//
//	sb := exec.Sandbox(lang, executor.WithSessionTimeout(5*time.Second))
//	r := runner.New(sb)
//
// # Host Functions
//
// Interpreter preludes call host functions by writing
// \x00GORU:{"fn":"kv_get","args":{"key":"a"}}\x00 to stderr and reading a
// JSON response line from stdin.
package executor
