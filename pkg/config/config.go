// Copyright (c) 2025, The gpupv Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"github.com/smart-gpu-pv/gpupv/pkg/driverstore"
	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/powershell"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GPUPV_"

// Environment variable names.
const (
	EnvConfig          = EnvPrefix + "CONFIG"
	EnvPowerShell      = EnvPrefix + "POWERSHELL"
	EnvCommandTimeout  = EnvPrefix + "COMMAND_TIMEOUT"
	EnvNative          = EnvPrefix + "NATIVE"
	EnvVendor          = EnvPrefix + "VENDOR"
	EnvUnmountAttempts = EnvPrefix + "UNMOUNT_ATTEMPTS"
	EnvUnmountDelay    = EnvPrefix + "UNMOUNT_DELAY"
)

// Unmount is the dismount retry policy.
type Unmount struct {
	Attempts int           `json:"attempts" yaml:"attempts"`
	Delay    time.Duration `json:"delay" yaml:"delay"`
}

// Config holds the runtime settings shared by the CLI and the daemon.
type Config struct {
	// PowerShell is the executable used for every scripted host call.
	PowerShell string `json:"powershell" yaml:"powershell"`

	// CommandTimeout bounds a single host call.
	CommandTimeout time.Duration `json:"commandTimeout" yaml:"commandTimeout"`

	// Native enables the WMI provider ahead of the PowerShell fallback.
	Native bool `json:"native" yaml:"native"`

	// Vendor is the last-resort GPU name during driver propagation.
	Vendor string `json:"vendor" yaml:"vendor"`

	Unmount Unmount `json:"unmount" yaml:"unmount"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PowerShell:     powershell.DefaultBinary,
		CommandTimeout: defaults.CommandTimeout,
		Native:         true,
		Vendor:         driverstore.DefaultVendor,
		Unmount: Unmount{
			Attempts: defaults.UnmountAttempts,
			Delay:    defaults.UnmountRetryDelay,
		},
	}
}

// Load reads the defaults, then the YAML file at path (skipped when path is
// empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return gpuerrors.WrapWithContext(gpuerrors.ErrCodeNotFound, "failed to read config file", err,
			map[string]any{"path": path})
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return gpuerrors.WrapWithContext(gpuerrors.ErrCodeInvalidRequest, "failed to parse config file", err,
			map[string]any{"path": path})
	}
	return nil
}

// applyEnv overrides fields from lookup; malformed values are errors rather
// than silently ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPowerShell); ok {
		c.PowerShell = v
	}
	if v, ok := get(EnvVendor); ok {
		c.Vendor = v
	}
	if v, ok := get(EnvNative); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvNative, v, err)
		}
		c.Native = b
	}
	if v, ok := get(EnvCommandTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(EnvCommandTimeout, v, err)
		}
		c.CommandTimeout = d
	}
	if v, ok := get(EnvUnmountAttempts); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvUnmountAttempts, v, err)
		}
		c.Unmount.Attempts = n
	}
	if v, ok := get(EnvUnmountDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(EnvUnmountDelay, v, err)
		}
		c.Unmount.Delay = d
	}
	return nil
}

func envError(name, value string, err error) error {
	return gpuerrors.WrapWithContext(gpuerrors.ErrCodeInvalidRequest,
		fmt.Sprintf("invalid value for %s", name), err,
		map[string]any{"name": name, "value": value})
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.PowerShell == "" {
		return gpuerrors.New(gpuerrors.ErrCodeInvalidRequest, "powershell executable cannot be empty")
	}
	if c.CommandTimeout <= 0 {
		return gpuerrors.New(gpuerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("command timeout must be positive, got %s", c.CommandTimeout))
	}
	if c.Unmount.Attempts < 1 {
		return gpuerrors.New(gpuerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unmount attempts must be at least 1, got %d", c.Unmount.Attempts))
	}
	if c.Unmount.Delay < 0 {
		return gpuerrors.New(gpuerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("unmount delay cannot be negative, got %s", c.Unmount.Delay))
	}
	return nil
}
