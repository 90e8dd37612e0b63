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

package api

import (
	"context"
	"log/slog"
	"os"

	"github.com/smart-gpu-pv/gpupv/pkg/config"
	"github.com/smart-gpu-pv/gpupv/pkg/logging"
	"github.com/smart-gpu-pv/gpupv/pkg/server"
)

const (
	name           = "gpupvd"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags, e.g.
	// -X "github.com/smart-gpu-pv/gpupv/pkg/api.version=1.0.0"
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Serve runs the API server until SIGINT or SIGTERM.
func Serve(ctx context.Context) error {
	logging.SetDefaultStructuredLogger(name, version)
	slog.Info("starting",
		slog.String("name", name),
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("date", date))

	cfg, err := config.Load(os.Getenv(config.EnvConfig))
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}
	stack := config.NewStack(cfg)

	srvCfg := server.NewConfig()
	h := NewHandlers(stack.Engine, stack.Orchestrator, srvCfg.MaxBodyBytes)

	s := server.New(
		server.WithConfig(srvCfg),
		server.WithName(name),
		server.WithVersion(version),
		server.WithHandler(h.Routes()),
		server.WithStatus(h.Status),
	)

	if err := s.Run(ctx); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
