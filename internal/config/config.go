// Package config loads scopetools settings from .scopetools.yml and CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".scopetools.yml"

// Config captures CLI options sourced from config files or flags.
type Config struct {
	OutDir string `koanf:"outdir" yaml:"outdir"`

	LogLevel  string `koanf:"log_level" yaml:"log_level"`
	LogFormat string `koanf:"log_format" yaml:"log_format"`
	Format    string `koanf:"format" yaml:"format"`

	// Shell runs every wrapped command as `<shell> -c <command>`.
	Shell string `koanf:"shell" yaml:"shell"`
	// Timeout is an optional deadline per command ("" or "0" disables it).
	Timeout string            `koanf:"timeout" yaml:"timeout"`
	EnvFile string            `koanf:"env_file" yaml:"env_file,omitempty"`
	Env     map[string]string `koanf:"env" yaml:"env,omitempty"`

	TemplatesDir string `koanf:"templates_dir" yaml:"templates_dir,omitempty"`
	MetricsFile  string `koanf:"metrics_file" yaml:"metrics_file,omitempty"`
	Journal      bool   `koanf:"journal" yaml:"journal"`

	OnlyStages []string `koanf:"only_stage" yaml:"only_stage,omitempty"`
	SkipStages []string `koanf:"skip_stage" yaml:"skip_stage,omitempty"`

	Rules           []RuleConfig      `koanf:"rules" yaml:"rules,omitempty"`
	RequireVersions map[string]string `koanf:"require_versions" yaml:"require_versions,omitempty"`

	Cutadapt CutadaptConfig `koanf:"cutadapt" yaml:"cutadapt"`
}

// RuleConfig declares an additional statistics extraction rule.
type RuleConfig struct {
	Name      string   `koanf:"name" yaml:"name"`
	Start     string   `koanf:"start" yaml:"start"`
	End       string   `koanf:"end" yaml:"end"`
	Invisible []string `koanf:"invisible" yaml:"invisible,omitempty"`
}

// CutadaptConfig holds defaults for the cutadapt stage.
type CutadaptConfig struct {
	Adapters      []string `koanf:"adapters" yaml:"adapters"`
	MinimumLength int      `koanf:"minimum_length" yaml:"minimum_length"`
	NextseqTrim   int      `koanf:"nextseq_trim" yaml:"nextseq_trim"`
	Overlap       int      `koanf:"overlap" yaml:"overlap"`
	Thread        int      `koanf:"thread" yaml:"thread"`
}

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"
)

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		OutDir:    ".",
		LogLevel:  "info",
		LogFormat: "text",
		Format:    FormatPretty,
		Shell:     "/bin/sh",
		Journal:   true,
		Cutadapt: CutadaptConfig{
			Adapters:      []string{"polyT=A{18}", "p5=AGATCGGAAGAGCACACGTCTGAACTCCAGTCAC"},
			MinimumLength: 20,
			NextseqTrim:   20,
			Overlap:       10,
			Thread:        2,
		},
	}
}

// Load reads .scopetools.yml from root when present. Missing files are ignored.
// When explicit is non-empty that file is read instead and must exist.
func Load(root, explicit string) (Config, error) {
	cfg := Default()

	path := explicit
	if path == "" {
		path = filepath.Join(root, FileName)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, nil
			}
			return cfg, fmt.Errorf("stat config %q: %w", path, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	// Keys absent from the file keep their defaults.
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validation errors returned by Validate.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidTimeout    = errors.New("invalid timeout")
	ErrInvalidRule       = errors.New("invalid rule")
)

// Validate checks values that cannot be fixed by defaults.
func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case FormatPretty, FormatJSON:
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, c.Format)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: rules[%d] has no name", ErrInvalidRule, i)
		}
		if r.Start == "" || r.End == "" {
			return fmt.Errorf("%w: rule %q needs start and end markers", ErrInvalidRule, r.Name)
		}
	}
	return nil
}

// JSON reports whether machine readable output was requested.
func (c Config) JSON() bool { return strings.EqualFold(c.Format, FormatJSON) }

// TimeoutDuration parses Timeout. An empty value means no deadline.
func (c Config) TimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(c.Timeout)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidTimeout, c.Timeout)
	}
	return d, nil
}

// Marshal renders the configuration as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.OutDir.Set {
		cfg.OutDir = flags.OutDir.Value
	}
	if flags.LogLevel.Set {
		cfg.LogLevel = flags.LogLevel.Value
	}
	if flags.LogFormat.Set {
		cfg.LogFormat = flags.LogFormat.Value
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Timeout.Set {
		cfg.Timeout = flags.Timeout.Value
	}
	if len(flags.OnlyStages.Values) > 0 {
		cfg.OnlyStages = append([]string{}, flags.OnlyStages.Values...)
	}
	if len(flags.SkipStages.Values) > 0 {
		cfg.SkipStages = append([]string{}, flags.SkipStages.Values...)
	}
	if flags.NoJournal.Set {
		cfg.Journal = !flags.NoJournal.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	OutDir     StringFlag
	LogLevel   StringFlag
	LogFormat  StringFlag
	Format     StringFlag
	Timeout    StringFlag
	OnlyStages SliceFlag
	SkipStages SliceFlag
	NoJournal  BoolFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}
