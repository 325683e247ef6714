package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/modoterra/uxhost/pkg/codec"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	if _, err := codec.ByName(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("codec must be json or cbor, got %q", c.Codec))
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json; got %q", c.Log.Format))
	}

	if c.Module.Dir != "" && c.Module.Command == "" {
		errs = append(errs, fmt.Errorf("module.dir set without module.command"))
	}

	if c.Display.Location != "" {
		if _, err := time.LoadLocation(c.Display.Location); err != nil {
			errs = append(errs, fmt.Errorf("display.location: %w", err))
		}
	}

	for category, color := range c.Display.Colors {
		if !validColor(color) {
			errs = append(errs, fmt.Errorf("display.colors[%q]: %q is not an ANSI code (0-255) or hex color", category, color))
		}
	}

	return errs
}

func validColor(s string) bool {
	if hexColor.MatchString(s) {
		return true
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 255
}

// TimeLocation returns the configured display location, or time.Local.
func (c *Config) TimeLocation() *time.Location {
	if c.Display.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Display.Location)
	if err != nil {
		return time.Local
	}
	return loc
}
