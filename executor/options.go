package executor

import (
	"time"

	"github.com/caffeineduck/doctest/hostfunc"
)

// Option configures a one-shot Run.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
	kv      *hostfunc.KV
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithKV exposes kv as the kv_* host functions for this run.
func WithKV(kv *hostfunc.KV) Option {
	return func(c *runConfig) {
		c.kv = kv
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses
// $XDG_CACHE_HOME/doctest or ~/.cache/doctest.
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules in
// 64KB pages. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	timeout      time.Duration
	startTimeout time.Duration
	kv           *hostfunc.KV
	env          map[string]string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:      30 * time.Second,
		startTimeout: 30 * time.Second,
		env:          make(map[string]string),
	}
}

// WithSessionTimeout bounds each Run of the session.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithStartTimeout bounds how long the interpreter may take to signal it
// is ready.
func WithStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithSessionKV exposes kv as the kv_* host functions of the session.
func WithSessionKV(kv *hostfunc.KV) SessionOption {
	return func(c *sessionConfig) {
		c.kv = kv
	}
}

// WithSessionEnv sets an environment variable for the interpreter.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}
