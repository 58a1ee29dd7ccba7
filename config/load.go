// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. PSUINIT_POLL_TIMEOUT.
	EnvPrefix = "PSUINIT"
	FileName  = "psuinit.yaml"
)

// Dir returns the directory searched for FileName: $PSUINIT_CONFIG_DIR,
// $XDG_CONFIG_HOME/psuinit or ~/.config/psuinit, in that order.
func Dir() (string, error) {
	if d := os.Getenv(EnvPrefix + "_CONFIG_DIR"); d != "" {
		return d, nil
	}
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, "psuinit"), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("no config directory: %w", err)
	}
	return filepath.Join(home, ".config", "psuinit"), nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("board", c.Board)
	v.SetDefault("backend", c.Backend)
	v.SetDefault("phases", c.Phases)
	v.SetDefault("poll.timeout", c.Poll.Timeout)
	v.SetDefault("poll.max_attempts", c.Poll.MaxAttempts)
	v.SetDefault("poll.min_interval", c.Poll.MinInterval)
	v.SetDefault("poll.max_interval", c.Poll.MaxInterval)
	v.SetDefault("strict_masks", c.StrictMasks)
	v.SetDefault("log_file", c.LogFile)
	v.SetDefault("console.device", c.Console.Device)
	v.SetDefault("console.baud", c.Console.Baud)
	v.SetDefault("metrics_textfile", c.MetricsTextfile)
}

// Load reads the YAML file at path over DefaultConfig, then applies
// PSUINIT_* environment overrides. An empty path looks for FileName in
// Dir() and falls back to the defaults if there is none.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		p := filepath.Join(dir, FileName)
		if ok, _ := afero.Exists(fs, p); ok {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Version = DefaultConfig.Version
	return c, nil
}
