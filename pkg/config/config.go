// Package config loads the uxhost configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/modoterra/uxhost/pkg/codec"
)

// ErrUnknownFormat is returned for config files with an unsupported extension.
var ErrUnknownFormat = errors.New("unknown config format")

// Defaults.
const (
	DefaultPath       = "uxhost.yaml"
	DefaultSocket     = "/tmp/uxhost.sock"
	DefaultTimeFormat = "15:04:05"
)

// Config represents a uxhost.yaml (or .jsonc) file.
type Config struct {
	Version int     `yaml:"version" json:"version"`
	Socket  string  `yaml:"socket"  json:"socket"`
	Codec   string  `yaml:"codec"   json:"codec"`
	Log     Log     `yaml:"log"     json:"log"`
	Module  Module  `yaml:"module"  json:"module"`
	Display Display `yaml:"display" json:"display"`

	// FilePath is where the config was loaded from, empty for defaults.
	FilePath string `yaml:"-" json:"-"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"  json:"level"`                  // debug|info|warn|error
	Format string `yaml:"format" json:"format"`                 // text|json
	File   string `yaml:"file,omitempty" json:"file,omitempty"` // interactive mode only
}

// Module describes how to launch the embedded module process.
type Module struct {
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Dir     string            `yaml:"dir,omitempty"     json:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"     json:"env,omitempty"`
}

// Display controls the viewing surface.
type Display struct {
	TimeFormat string            `yaml:"time_format" json:"time_format"`
	Location   string            `yaml:"location,omitempty" json:"location,omitempty"`
	Colors     map[string]string `yaml:"colors,omitempty"   json:"colors,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: 1,
		Socket:  DefaultSocket,
		Codec:   codec.NameJSON,
		Log:     Log{Level: "info", Format: "text"},
		Display: Display{TimeFormat: DefaultTimeFormat},
	}
}

// Load reads and parses the file at path, choosing the format by
// extension. A missing file yields Default() with env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c := Default()
			applyEnv(c)
			return c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c, err = Parse(data)
	case ".json", ".jsonc":
		c, err = ParseJSONC(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, err
	}
	c.FilePath = path
	applyEnv(c)
	return c, nil
}

// Parse decodes YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	interpolate(c)
	return c, nil
}

// ParseJSONC decodes JSON-with-comments config data over the defaults.
func ParseJSONC(data []byte) (*Config, error) {
	c := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	interpolate(c)
	return c, nil
}

// Save writes c as YAML.
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ModuleEnv returns the environment handed to the embedded module: the
// configured variables plus the socket and codec it must connect with.
func (c *Config) ModuleEnv() map[string]string {
	env := map[string]string{
		"UXHOST_SOCKET": c.Socket,
		"UXHOST_CODEC":  c.Codec,
	}
	for k, v := range c.Module.Env {
		env[k] = v
	}
	return env
}

// interpolate expands ${socket} and ${codec} in module settings.
func interpolate(c *Config) {
	expand := func(s string) string {
		return os.Expand(s, func(key string) string {
			switch key {
			case "socket":
				return c.Socket
			case "codec":
				return c.Codec
			default:
				return "${" + key + "}"
			}
		})
	}
	c.Module.Command = expand(c.Module.Command)
	c.Module.Dir = expand(c.Module.Dir)
	for k, v := range c.Module.Env {
		c.Module.Env[k] = expand(v)
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("UXHOST_SOCKET"); v != "" {
		c.Socket = v
	}
	if v := os.Getenv("UXHOST_CODEC"); v != "" {
		c.Codec = v
	}
	if v := os.Getenv("UXHOST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
