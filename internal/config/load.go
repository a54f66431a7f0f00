package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is the resolved config path, the validated settings, and every
// non-fatal warning produced while loading them.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// RelayEnabled reports whether relay.nats_url is configured.
func (l Loaded) RelayEnabled() bool {
	return l.Config.Relay.NATSURL != ""
}

// Load resolves the config path and returns validated settings. A missing file
// yields defaults with a file-level warning plus the defaults' own warnings.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: path, Config: Default()}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Key:     "config",
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		})
		warnings, err := Validate(loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("validate defaults: %w", err)
		}
		loaded.Warnings = append(loaded.Warnings, warnings...)
		return loaded, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	loaded.Config = cfg
	loaded.Warnings = warnings
	loaded.Exists = true
	return loaded, nil
}
