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

package server

import (
	"testing"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
)

func TestParseConfig(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		t.Setenv("PORT", "")
		t.Setenv("ADDRESS", "")
		t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "")
		t.Setenv("RATE_LIMIT", "")
		t.Setenv("MAX_BODY_BYTES", "")

		cfg := parseConfig()

		if cfg.Address != "127.0.0.1" {
			t.Errorf("expected loopback address, got %s", cfg.Address)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.Port)
		}
		if cfg.RateLimit != 20 {
			t.Errorf("expected rate limit 20, got %v", cfg.RateLimit)
		}
		if cfg.WriteTimeout != defaults.ServerWriteTimeout {
			t.Errorf("expected write timeout %v, got %v", defaults.ServerWriteTimeout, cfg.WriteTimeout)
		}
		if cfg.ShutdownTimeout != defaults.ServerShutdownTimeout {
			t.Errorf("expected shutdown timeout %v, got %v", defaults.ServerShutdownTimeout, cfg.ShutdownTimeout)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("ADDRESS", "0.0.0.0")
		t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "600")
		t.Setenv("RATE_LIMIT", "5")
		t.Setenv("MAX_BODY_BYTES", "4096")

		cfg := parseConfig()

		if cfg.RateLimit != 5 || cfg.RateLimitBurst != 10 {
			t.Errorf("expected rate limit 5/10, got %v/%d", cfg.RateLimit, cfg.RateLimitBurst)
		}
		if cfg.MaxBodyBytes != 4096 {
			t.Errorf("expected max body 4096, got %d", cfg.MaxBodyBytes)
		}

		if cfg.Port != 9090 {
			t.Errorf("expected port 9090 from env, got %d", cfg.Port)
		}
		if cfg.Address != "0.0.0.0" {
			t.Errorf("expected address from env, got %s", cfg.Address)
		}
		if cfg.ShutdownTimeout != 10*time.Minute {
			t.Errorf("expected shutdown timeout 10m, got %v", cfg.ShutdownTimeout)
		}
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		t.Setenv("PORT", "http")
		t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "-5")
		t.Setenv("RATE_LIMIT", "0")

		cfg := parseConfig()

		if cfg.Port != 8080 {
			t.Errorf("expected default port, got %d", cfg.Port)
		}
		if cfg.ShutdownTimeout != defaults.ServerShutdownTimeout {
			t.Errorf("expected default shutdown timeout, got %v", cfg.ShutdownTimeout)
		}
		if cfg.RateLimit != 20 {
			t.Errorf("expected default rate limit, got %v", cfg.RateLimit)
		}
	})
}
