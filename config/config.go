// Package config loads the proxy's YAML settings file (grounded on
// adoctl/pkg/config) and projects it down into the plain core.Config
// the engine consumes — the core package never imports yaml.v3 itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/waylab/wlproxy/core"
)

// Settings is the on-disk shape of the proxy's configuration file.
type Settings struct {
	// Upstream is the path to the real compositor's socket this proxy
	// connects to (e.g. $XDG_RUNTIME_DIR/wayland-1).
	Upstream string `yaml:"upstream"`

	// Listen is the path this proxy's own socket is created at, the
	// one clients are redirected to (e.g. via WAYLAND_DISPLAY).
	Listen string `yaml:"listen"`

	Log LogSettings `yaml:"log"`

	// ReplayServerErrors mirrors core.Config.ReplayServerErrors (§9
	// open question); defaults to true when absent from the file.
	ReplayServerErrors *bool `yaml:"replay_server_errors,omitempty"`
}

type LogSettings struct {
	// Prefix is prepended to every wire-trace line (see logging.Sink);
	// useful when several proxy instances share one log stream.
	Prefix string `yaml:"prefix"`
	Level  string `yaml:"level"`
}

const DefaultLevel = "info"

// Load reads and parses path. A missing file is not an error: the
// caller gets Defaults() instead, following adoctl/pkg/config's
// "config file is optional" pattern. Defaults() is returned without
// running Validate, so its Upstream and Listen are empty; nothing in
// this package or in cmd/wlproxyd fills them in from flags or the
// environment.
func Load(path string) (*Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func Defaults() *Settings {
	return &Settings{
		Log: LogSettings{Level: DefaultLevel},
	}
}

func (s *Settings) Validate() error {
	if s.Upstream == "" {
		return fmt.Errorf("config: upstream socket path is required")
	}
	if s.Listen == "" {
		return fmt.Errorf("config: listen socket path is required")
	}
	return nil
}

// ReplayServerErrorsOrDefault resolves the tri-state YAML field (the
// key's absence must mean "use the default", which a plain bool can't
// express) down to the concrete value core.Config wants.
func (s *Settings) ReplayServerErrorsOrDefault() bool {
	if s.ReplayServerErrors == nil {
		return true
	}
	return *s.ReplayServerErrors
}

// Core projects these on-disk settings down to the engine-level
// Config — the one piece core/state.go actually consumes.
func (s *Settings) Core() core.Config {
	return core.Config{ReplayServerErrors: s.ReplayServerErrorsOrDefault()}
}
