package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/config"
	"github.com/caffeineduck/doctest/executor"
	"github.com/caffeineduck/doctest/hostfunc"
	"github.com/caffeineduck/doctest/internal/logging"
	"github.com/caffeineduck/doctest/language"
	"github.com/caffeineduck/doctest/option"
	"github.com/caffeineduck/doctest/parser"
	"github.com/caffeineduck/doctest/sandbox"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "doctest",
		Short: "Run the interactive examples embedded in documentation",
		Long: `doctest - Check that the examples in your documentation still work.

Examples are written as interactive sessions: a prompt line with the code,
followed by the output it prints. doctest finds them in Go doc comments,
fenced Markdown blocks and plain text files, runs them in a sandbox (an
embedded Lua interpreter or any WASI interpreter compiled to WebAssembly)
and reports every example whose output differs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.String("config", "", "Config file (default: .doctest.{yaml,toml,json} in the current directory)")
	f.String("log-level", "warn", "Log level: debug, info, warn, error")
	f.String("syntax", "", "Prompt syntax: lua, python, php")
	f.String("prompt", "", "Override the prompt token")
	f.String("continuation", "", "Override the continuation token")
	f.String("sandbox", "", "Sandbox: lua, wasm")
	f.String("wasm-module", "", "WASI interpreter module (wasm sandbox)")
	f.String("wasm-preset", "", "Interpreter command line preset: "+strings.Join(language.Names(), ", "))
	f.String("wasm-prelude", "", "File prepended to every snippet (wasm sandbox)")
	f.String("wasm-session-prelude", "", "File that starts the interpreter's session loop (wasm sandbox)")
	f.StringSlice("wasm-arg", nil, "Interpreter argv entry (repeatable)")
	f.StringArray("mount", nil, "Expose a fixture directory as PATH=DIR[:ro|rw|rwc] (repeatable)")
	f.StringSlice("allow-host", nil, "Host examples may reach through http_request (repeatable)")
	f.Duration("timeout", 0, "Per-example timeout")
	f.Bool("no-cache", false, "Disable the compilation cache (wasm sandbox)")
	f.String("memory", "", "Memory limit: 16mb, 64mb, 256mb (wasm sandbox)")

	root.AddCommand(newRunCmd(), newReplCmd(), newServeCmd(), newFlagsCmd())
	return root
}

// settings holds everything a command needs, resolved from the config file
// and flags.
type settings struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *option.Registry
	syntax   parser.Syntax
	parser   *parser.Parser
	flags    option.Flags
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	f := cmd.Flags()

	path, _ := f.GetString("config")
	if path == "" {
		path = config.Find(".")
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	overrideString(cmd, "syntax", &cfg.Syntax)
	overrideString(cmd, "prompt", &cfg.Prompt)
	overrideString(cmd, "continuation", &cfg.Continuation)
	overrideString(cmd, "sandbox", &cfg.Sandbox)
	overrideString(cmd, "wasm-module", &cfg.Wasm.Module)
	overrideString(cmd, "wasm-preset", &cfg.Wasm.Preset)
	overrideString(cmd, "wasm-prelude", &cfg.Wasm.Prelude)
	overrideString(cmd, "wasm-session-prelude", &cfg.Wasm.SessionPrelude)
	if f.Changed("wasm-arg") {
		cfg.Wasm.Args, _ = f.GetStringSlice("wasm-arg")
	}
	if f.Changed("mount") {
		specs, _ := f.GetStringArray("mount")
		for _, spec := range specs {
			m, err := parseMount(spec)
			if err != nil {
				return nil, err
			}
			cfg.Host.Mounts = append(cfg.Host.Mounts, m)
		}
	}
	if f.Changed("allow-host") {
		hosts, _ := f.GetStringSlice("allow-host")
		cfg.Host.AllowedHosts = append(cfg.Host.AllowedHosts, hosts...)
	}
	if f.Changed("timeout") {
		cfg.Timeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("no-cache") {
		noCache, _ := f.GetBool("no-cache")
		cfg.Wasm.DiskCache = !noCache
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	levelName, _ := f.GetString("log-level")
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	s := &settings{
		cfg:      cfg,
		logger:   logging.NewWriter(cmd.ErrOrStderr(), level),
		registry: option.NewRegistry(),
	}
	if s.syntax, err = cfg.ParserSyntax(); err != nil {
		return nil, err
	}
	if s.parser, err = parser.New(s.syntax, s.registry); err != nil {
		return nil, err
	}
	if s.flags, err = cfg.Flags(s.registry); err != nil {
		return nil, err
	}
	return s, nil
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// buildSandbox creates the configured sandbox. The returned function
// releases it.
func buildSandbox(cmd *cobra.Command, s *settings) (doctest.Sandbox, func() error, error) {
	registry := hostfunc.NewRegistry()
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	if err := s.cfg.HostFunctions(registry); err != nil {
		return nil, nil, err
	}
	s.logger.Debug("host functions", "names", registry.List())

	switch s.cfg.Sandbox {
	case config.SandboxWasm:
		lang, err := loadLanguage(s.cfg.Wasm)
		if err != nil {
			return nil, nil, err
		}

		var execOpts []executor.ExecutorOption
		if s.cfg.Wasm.DiskCache {
			execOpts = append(execOpts, executor.WithDiskCache())
		}
		memory, _ := cmd.Flags().GetString("memory")
		if pages := parseMemoryLimit(memory); pages > 0 {
			execOpts = append(execOpts, executor.WithMemoryLimit(pages))
		}
		exec, err := executor.New(registry, execOpts...)
		if err != nil {
			return nil, nil, err
		}

		sessionOpts := []executor.SessionOption{
			executor.WithSessionTimeout(s.cfg.Timeout),
			executor.WithSessionKV(kv),
		}
		if s.cfg.Wasm.StartTimeout > 0 {
			sessionOpts = append(sessionOpts, executor.WithStartTimeout(s.cfg.Wasm.StartTimeout))
		}
		for k, v := range s.cfg.Wasm.Env {
			sessionOpts = append(sessionOpts, executor.WithSessionEnv(k, v))
		}
		s.logger.Debug("wasm sandbox ready", "module", s.cfg.Wasm.Module)
		return exec.Sandbox(lang, sessionOpts...), exec.Close, nil

	case config.SandboxLua:
		kv.Register(registry)
		var opts []sandbox.LuaOption
		opts = append(opts, sandbox.WithRegistry(registry))
		if s.cfg.Timeout > 0 {
			opts = append(opts, sandbox.WithTimeout(s.cfg.Timeout))
		}
		return sandbox.NewLua(opts...), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown sandbox %q", s.cfg.Sandbox)
}

// loadLanguage reads the interpreter module and its preludes, taking the
// command line from the preset when one is named.
func loadLanguage(w config.Wasm) (*executor.ModuleLanguage, error) {
	var lang *executor.ModuleLanguage
	var err error
	if w.Preset != "" {
		p, ok := language.Lookup(w.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown wasm preset %q", w.Preset)
		}
		lang, err = p.Load(w.Module, w.Args)
	} else {
		name := strings.TrimSuffix(filepath.Base(w.Module), filepath.Ext(w.Module))
		lang, err = executor.LoadModule(name, w.Module, w.Args)
	}
	if err != nil {
		return nil, err
	}
	if err := lang.LoadPreludes(w.Prelude, w.SessionPrelude); err != nil {
		return nil, err
	}
	return lang, nil
}

// parseMount reads PATH=DIR with an optional :ro, :rw or :rwc suffix.
func parseMount(spec string) (config.Mount, error) {
	vpath, dir, ok := strings.Cut(spec, "=")
	if !ok || vpath == "" || dir == "" {
		return config.Mount{}, fmt.Errorf("mount %q: want PATH=DIR[:MODE]", spec)
	}
	m := config.Mount{Path: vpath, Dir: dir}
	if i := strings.LastIndex(dir, ":"); i >= 0 {
		if _, err := hostfunc.ParseMountMode(dir[i+1:]); err == nil && dir[i+1:] != "" {
			m.Dir, m.Mode = dir[:i], dir[i+1:]
		}
	}
	return m, nil
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return executor.MemoryLimit16MB
	case "64mb":
		return executor.MemoryLimit64MB
	case "256mb":
		return executor.MemoryLimit256MB
	default:
		return 0
	}
}

// durationMs reports d in whole milliseconds for JSON payloads.
func durationMs(d time.Duration) int64 { return d.Milliseconds() }
