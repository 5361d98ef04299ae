// Package config loads analysis options from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/speakeasy-api/valueflow/analysis"
)

// Config is the file form of analysis.Options. Limits start from the
// preset and individual fields override it.
type Config struct {
	Preset           string         `yaml:"preset"`
	Limits           LimitOverrides `yaml:"limits"`
	LogLevel         string         `yaml:"logLevel"`
	MaxIterations    int            `yaml:"maxIterations"`
	Workers          int            `yaml:"workers"`
	ResolveCacheSize int            `yaml:"resolveCacheSize"`
}

// LimitOverrides replaces individual preset limits. Nil fields keep the
// preset value.
type LimitOverrides struct {
	NormalArgumentTypes *int `yaml:"normalArgumentTypes"`
	IndexTypes          *int `yaml:"indexTypes"`
	InstanceMembers     *int `yaml:"instanceMembers"`
	DictKeyTypes        *int `yaml:"dictKeyTypes"`
	DictValueTypes      *int `yaml:"dictValueTypes"`
	ReturnTypes         *int `yaml:"returnTypes"`
	AssignedTypes       *int `yaml:"assignedTypes"`
	MaxMergeStrength    *int `yaml:"maxMergeStrength"`
}

var validPresets = []string{"default", "low"}

var validLogLevels = []string{"error", "warn", "info", "debug"}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document. Unknown keys are
// rejected. An empty document yields the default configuration.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	return ValidateConfig(cfg)
}

// ValidateConfig normalises the preset and log level names (case
// insensitive) and checks the resulting limits.
func ValidateConfig(cfg Config) (Config, error) {
	if cfg.Preset == "" {
		cfg.Preset = "default"
	}
	preset, ok := normalise(cfg.Preset, validPresets)
	if !ok {
		return cfg, fmt.Errorf("invalid preset %q; valid presets: %s", cfg.Preset, strings.Join(validPresets, ", "))
	}
	cfg.Preset = preset

	if cfg.LogLevel != "" {
		level, ok := normalise(cfg.LogLevel, validLogLevels)
		if !ok {
			return cfg, fmt.Errorf("invalid log level %q; valid levels: %s", cfg.LogLevel, strings.Join(validLogLevels, ", "))
		}
		cfg.LogLevel = level
	}

	if cfg.MaxIterations < 0 {
		return cfg, fmt.Errorf("maxIterations must not be negative, got %d", cfg.MaxIterations)
	}
	if cfg.Workers < 0 {
		return cfg, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.ResolveCacheSize < 0 {
		return cfg, fmt.Errorf("resolveCacheSize must not be negative, got %d", cfg.ResolveCacheSize)
	}
	if err := cfg.limits().Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalise(s string, valid []string) (string, bool) {
	for _, v := range valid {
		if strings.EqualFold(s, v) {
			return v, true
		}
	}
	return s, false
}

func (c Config) limits() analysis.Limits {
	l := analysis.DefaultLimits()
	if strings.EqualFold(c.Preset, "low") {
		l = analysis.LowLimits()
	}
	o := c.Limits
	apply := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&l.NormalArgumentTypes, o.NormalArgumentTypes)
	apply(&l.IndexTypes, o.IndexTypes)
	apply(&l.InstanceMembers, o.InstanceMembers)
	apply(&l.DictKeyTypes, o.DictKeyTypes)
	apply(&l.DictValueTypes, o.DictValueTypes)
	apply(&l.ReturnTypes, o.ReturnTypes)
	apply(&l.AssignedTypes, o.AssignedTypes)
	apply(&l.MaxMergeStrength, o.MaxMergeStrength)
	return l
}

// Options converts the configuration into project options. Zero driver
// settings keep the analysis defaults.
func (c Config) Options() analysis.Options {
	opts := analysis.DefaultOptions()
	opts.Limits = c.limits()
	opts.LogLevel = c.LogLevel
	if c.MaxIterations > 0 {
		opts.MaxIterations = c.MaxIterations
	}
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if c.ResolveCacheSize > 0 {
		opts.ResolveCacheSize = c.ResolveCacheSize
	}
	return opts
}
