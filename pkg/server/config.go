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
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/smart-gpu-pv/gpupv/pkg/defaults"
	"golang.org/x/time/rate"
)

// Config holds the HTTP server settings.
type Config struct {
	// Server identity
	Name    string
	Version string

	// Handlers are the API routes; each is wrapped in the middleware chain.
	Handlers map[string]http.HandlerFunc

	Address string
	Port    int

	// Rate limiting
	RateLimit      rate.Limit // requests per second
	RateLimitBurst int

	// MaxBodyBytes bounds request bodies read by handlers.
	MaxBodyBytes int64

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// NewConfig returns the defaults with environment overrides applied.
func NewConfig() *Config {
	return parseConfig()
}

func parseConfig() *Config {
	cfg := &Config{
		Name:              "gpupvd",
		Version:           "undefined",
		Address:           "127.0.0.1",
		Port:              8080,
		RateLimit:         20,
		RateLimitBurst:    40,
		MaxBodyBytes:      1 << 20,
		ReadTimeout:       defaults.ServerReadTimeout,
		ReadHeaderTimeout: defaults.ServerReadHeaderTimeout,
		WriteTimeout:      defaults.ServerWriteTimeout,
		IdleTimeout:       defaults.ServerIdleTimeout,
		ShutdownTimeout:   defaults.ServerShutdownTimeout,
	}

	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.Address = addr
	}
	if port, ok := positiveEnv("PORT"); ok {
		cfg.Port = port
	}
	if rps, ok := positiveEnv("RATE_LIMIT"); ok {
		cfg.RateLimit = rate.Limit(rps)
		cfg.RateLimitBurst = 2 * rps
	}
	if n, ok := positiveEnv("MAX_BODY_BYTES"); ok {
		cfg.MaxBodyBytes = int64(n)
	}
	// A configure run in flight holds the shutdown open; raise this to let
	// it finish.
	if seconds, ok := positiveEnv("SHUTDOWN_TIMEOUT_SECONDS"); ok {
		cfg.ShutdownTimeout = time.Duration(seconds) * time.Second
	}

	return cfg
}

// positiveEnv reads a positive integer; malformed values are ignored with a
// warning so the daemon still starts on its defaults.
func positiveEnv(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid server setting", slog.String("env", name), slog.String("value", v))
		return 0, false
	}
	return n, true
}
