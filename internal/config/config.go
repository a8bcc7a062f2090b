// Package config loads the YAML configuration of the boxdump tool and turns
// it into a parser and a logger.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	console "github.com/phsym/console-slog"
	"gopkg.in/yaml.v3"

	"github.com/tetsuo/boxtree"
)

// Container declares an extra container box type.
type Container struct {
	Type         string `yaml:"type"`
	Prefix       uint64 `yaml:"prefix"`
	PrefixIfZero bool   `yaml:"prefix_if_zero"`
	Terminator   bool   `yaml:"terminator"`
}

// Log configures the console logger.
type Log struct {
	Level      string `yaml:"level"`
	NoColor    bool   `yaml:"no_color"`
	TimeFormat string `yaml:"time_format"`
}

// Config is the tool configuration.
type Config struct {
	MaxDepth   int         `yaml:"max_depth"`
	Parallel   int         `yaml:"parallel"`
	SkipTables bool        `yaml:"skip_tables"`
	Containers []Container `yaml:"containers"`
	Leaves     []string    `yaml:"leaves"` // types forced to be leaves
	Log        Log         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxDepth: boxtree.DefaultMaxDepth,
		Parallel: 1,
		Log: Log{
			Level:      "info",
			TimeFormat: "15:04:05.000",
		},
	}
}

// Load reads the configuration at path on top of Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, err
	}
	if c.MaxDepth < 0 {
		return Config{}, fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.Parallel < 0 {
		return Config{}, fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	return c, nil
}

// Registry returns the default registry with the configured overrides.
func (c Config) Registry() (boxtree.Registry, error) {
	r := boxtree.DefaultRegistry()
	for _, ct := range c.Containers {
		t, err := boxtree.ParseBoxType(ct.Type)
		if err != nil {
			return nil, err
		}
		r[t] = boxtree.Descriptor{
			Kind:         boxtree.Container,
			Prefix:       ct.Prefix,
			PrefixIfZero: ct.PrefixIfZero,
			Terminator:   ct.Terminator,
		}
	}
	for _, s := range c.Leaves {
		t, err := boxtree.ParseBoxType(s)
		if err != nil {
			return nil, err
		}
		d := r[t]
		d.Kind = boxtree.Leaf
		r[t] = d
	}
	return r, nil
}

// Parser returns a parser configured by c.
func (c Config) Parser(logger *slog.Logger) (*boxtree.Parser, error) {
	r, err := c.Registry()
	if err != nil {
		return nil, err
	}
	return &boxtree.Parser{
		Registry:   r,
		MaxDepth:   c.MaxDepth,
		SkipTables: c.SkipTables,
		Parallel:   c.Parallel,
		Logger:     logger,
	}, nil
}

// Logger returns a console logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(console.NewHandler(w, &console.HandlerOptions{
		Level:      ParseLevel(c.Log.Level),
		NoColor:    c.Log.NoColor,
		TimeFormat: c.Log.TimeFormat,
	}))
}

// ParseLevel converts a level name to a slog level. Unknown names map to
// info.
func ParseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lv.Level()
}
