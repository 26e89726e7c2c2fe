// Package config loads project settings from .doctest.yaml, .doctest.toml
// or .doctest.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/doctest/hostfunc"
	"github.com/caffeineduck/doctest/language"
	"github.com/caffeineduck/doctest/option"
	"github.com/caffeineduck/doctest/parser"
)

// ErrUnsupportedFormat is returned for files that are not YAML, TOML or
// JSON.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Names lists the file names Find looks for, in order.
var Names = []string{".doctest.yaml", ".doctest.yml", ".doctest.toml", ".doctest.json"}

// Sandbox kinds.
const (
	SandboxLua  = "lua"
	SandboxWasm = "wasm"
)

// Config holds project settings. Durations are written as strings such as
// "5s".
type Config struct {
	// Syntax names a preset: "lua", "python" or "php".
	Syntax string `mapstructure:"syntax"`
	// Prompt and Continuation override the preset's tokens.
	Prompt       string `mapstructure:"prompt"`
	Continuation string `mapstructure:"continuation"`
	// Options are flag names, optionally signed: "ELLIPSIS", "-SKIP".
	Options  []string `mapstructure:"options"`
	Verbose  bool     `mapstructure:"verbose"`
	FailFast bool     `mapstructure:"fail_fast"`
	// Sandbox is "lua" or "wasm".
	Sandbox  string         `mapstructure:"sandbox"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Wasm     Wasm           `mapstructure:"wasm"`
	Host     Host           `mapstructure:"host"`
	Markdown Markdown       `mapstructure:"markdown"`
	Globals  map[string]any `mapstructure:"globals"`
	Paths    []string       `mapstructure:"paths"`
}

// Wasm configures a WASI interpreter module.
type Wasm struct {
	Module string `mapstructure:"module"`
	// Preset names a known interpreter whose command line is used when
	// Args is empty.
	Preset string `mapstructure:"preset"`
	// Prelude and SessionPrelude are paths to code prepended to every
	// snippet and to the session start. Stock interpreters need a session
	// prelude that runs the stdin command loop.
	Prelude        string `mapstructure:"prelude"`
	SessionPrelude string `mapstructure:"session_prelude"`
	// Args is the interpreter argv; "{code}" marks where a one-shot snippet
	// goes.
	Args         []string          `mapstructure:"args"`
	Env          map[string]string `mapstructure:"env"`
	StartTimeout time.Duration     `mapstructure:"start_timeout"`
	DiskCache    bool              `mapstructure:"disk_cache"`
}

// Host configures the host functions examples may call besides kv_*.
type Host struct {
	// Mounts expose fixture directories through fs_*.
	Mounts []Mount `mapstructure:"mounts"`
	// AllowedHosts enables http_request and http_get for these hosts.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

// Mount maps the host directory Dir to the virtual Path. Mode is "ro"
// (default), "rw" or "rwc". A relative Dir is taken from the config file's
// directory.
type Mount struct {
	Path string `mapstructure:"path"`
	Dir  string `mapstructure:"dir"`
	Mode string `mapstructure:"mode"`
}

type Markdown struct {
	Languages []string `mapstructure:"languages"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Syntax:   "lua",
		Sandbox:  SandboxLua,
		Wasm:     Wasm{DiskCache: true},
		Markdown: Markdown{Languages: []string{"lua"}},
	}
}

// Find returns the first config file in dir, or "" if there is none.
func Find(dir string) string {
	for _, name := range Names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads path on top of Default. The format follows the extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		_, err = toml.Decode(string(data), &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := Default()
	if err := decode(raw, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, m := range cfg.Host.Mounts {
		if m.Dir != "" && !filepath.IsAbs(m.Dir) {
			cfg.Host.Mounts[i].Dir = filepath.Join(filepath.Dir(path), m.Dir)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		ZeroFields:       true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if _, err := c.ParserSyntax(); err != nil {
		return err
	}
	switch c.Sandbox {
	case SandboxLua:
	case SandboxWasm:
		if c.Wasm.Module == "" {
			return errors.New("wasm sandbox requires wasm.module")
		}
		if c.Wasm.Preset != "" {
			if _, ok := language.Lookup(c.Wasm.Preset); !ok {
				return fmt.Errorf("unknown wasm preset %q", c.Wasm.Preset)
			}
			if c.Wasm.SessionPrelude == "" {
				return fmt.Errorf("wasm preset %q requires wasm.session_prelude", c.Wasm.Preset)
			}
		}
	default:
		return fmt.Errorf("unknown sandbox %q", c.Sandbox)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	for _, m := range c.Host.Mounts {
		if m.Path == "" || m.Dir == "" {
			return errors.New("host.mounts entries require path and dir")
		}
		if _, err := hostfunc.ParseMountMode(m.Mode); err != nil {
			return fmt.Errorf("host mount %s: %w", m.Path, err)
		}
	}
	return nil
}

// HostFunctions registers the fs_* and http_* functions the Host section
// enables on registry.
func (c *Config) HostFunctions(registry *hostfunc.Registry) error {
	if len(c.Host.Mounts) > 0 {
		mounts := make([]hostfunc.Mount, 0, len(c.Host.Mounts))
		for _, m := range c.Host.Mounts {
			mode, err := hostfunc.ParseMountMode(m.Mode)
			if err != nil {
				return fmt.Errorf("host mount %s: %w", m.Path, err)
			}
			mounts = append(mounts, hostfunc.Mount{Path: m.Path, Dir: m.Dir, Mode: mode})
		}
		fs, err := hostfunc.NewFS(mounts...)
		if err != nil {
			return err
		}
		fs.Register(registry)
	}
	if len(c.Host.AllowedHosts) > 0 {
		hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: c.Host.AllowedHosts}).Register(registry)
	}
	return nil
}

// ParserSyntax returns the syntax preset with any token overrides applied.
func (c *Config) ParserSyntax() (parser.Syntax, error) {
	syntax, ok := parser.SyntaxByName(c.Syntax)
	if !ok {
		return parser.Syntax{}, fmt.Errorf("unknown syntax %q", c.Syntax)
	}
	if c.Prompt != "" {
		syntax.Prompt = c.Prompt
	}
	if c.Continuation != "" {
		syntax.Continuation = c.Continuation
	}
	return syntax, nil
}

// Flags resolves Options through registry.
func (c *Config) Flags(registry *option.Registry) (option.Flags, error) {
	if registry == nil {
		registry = option.NewRegistry()
	}
	o, err := registry.Parse(strings.Join(c.Options, ","))
	if err != nil {
		return 0, err
	}
	return o.Apply(0), nil
}
