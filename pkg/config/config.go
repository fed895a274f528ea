// Package config holds the ralph-lsra command-line configuration: defaults,
// an optional TOML file and RALPH_LSRA_* environment overrides.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/raymyers/ralph-lsra/pkg/regalloc"
	"github.com/raymyers/ralph-lsra/pkg/target"
	"github.com/raymyers/ralph-lsra/pkg/unitfile"
)

// Environment variables read by FromEnv.
const (
	EnvTarget = "RALPH_LSRA_TARGET"
	EnvFormat = "RALPH_LSRA_FORMAT"
	EnvJobs   = "RALPH_LSRA_JOBS"
	EnvTrace  = "RALPH_LSRA_TRACE"
	EnvVerify = "RALPH_LSRA_VERIFY"
)

// Config is the effective configuration of a run.
type Config struct {
	Target string `toml:"target"`
	Format string `toml:"format"`
	Jobs   int    `toml:"jobs"`
	Trace  string `toml:"trace"`
	Verify bool   `toml:"verify"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Target: "arm64",
		Format: string(unitfile.FormatText),
		Jobs:   runtime.GOMAXPROCS(0),
		Trace:  regalloc.TraceOff.String(),
		Verify: true,
	}
}

// Load overlays the TOML file at path on c. Keys the file sets but Config
// does not know are an error.
func (c *Config) Load(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// FromEnv overlays the RALPH_LSRA_* environment variables that are set.
// The environment is reread on every call.
func (c *Config) FromEnv() error {
	env.Load()
	c.Target = env.Str(EnvTarget, c.Target)
	c.Format = env.Str(EnvFormat, c.Format)
	c.Trace = env.Str(EnvTrace, c.Trace)
	c.Jobs = env.Int(EnvJobs, c.Jobs)
	if v := env.Str(EnvVerify); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerify, err)
		}
		c.Verify = b
	}
	return nil
}

// Validate checks every setting names something that exists.
func (c *Config) Validate() error {
	if _, err := target.Lookup(c.Target); err != nil {
		return err
	}
	if _, err := unitfile.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := regalloc.ParseTraceLevel(c.Trace); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}

// Options converts the configuration into allocator options. The trace
// writer is left to the caller.
func (c *Config) Options() (regalloc.Options, error) {
	level, err := regalloc.ParseTraceLevel(c.Trace)
	if err != nil {
		return regalloc.Options{}, err
	}
	return regalloc.Options{Verify: c.Verify, TraceLevel: level}, nil
}
