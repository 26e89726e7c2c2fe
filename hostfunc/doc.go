// Package hostfunc provides Go functions that documentation snippets can
// call from inside a sandbox.
//
// # Registry
//
// The [Registry] maps names to host functions. The Lua sandbox exposes
// every registered function as a field of the global host table, and WASM
// interpreters reach them through the executor's stderr call protocol.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "hello " + args["name"].(string), nil
//	})
//
// A Lua example can then read:
//
//	> host.greet{name = "docs"}
//	hello docs
//
// # Key-Value Store
//
// [KV] is an in-memory store whose contents outlive a single snippet, so
// examples in different DocTests can share fixtures.
//
//	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
//	kv.Register(registry)
//
// # Fixtures and HTTP
//
// [FS] exposes fixture directories under virtual paths, and [HTTP] lets
// examples reach an allow list of hosts. Nothing outside a mount or the
// allow list is reachable.
//
//	fs, err := hostfunc.NewFS(hostfunc.Mount{Path: "/fixtures", Dir: "testdata"})
//	if err != nil {
//	    return err
//	}
//	fs.Register(registry)
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"api.example.com"}}).Register(registry)
//
//	> host.fs_read{path = "/fixtures/greeting.txt"}
//	hello
//
// Host functions must be deterministic for a given input so examples stay
// reproducible.
package hostfunc
