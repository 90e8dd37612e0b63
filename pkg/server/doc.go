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

// Package server provides the HTTP server shared by gpupv daemons.
//
// It owns everything that is not a domain route: listening, graceful
// shutdown, health and readiness probes, Prometheus metrics, and the
// middleware chain applied to every API handler.
//
// # Middleware
//
// API handlers run inside, outermost first:
//
//   - metrics: request count, latency and in-flight gauge
//   - version: negotiates the API version from Accept
//     (application/vnd.gpupv.v1+json) and sets X-API-Version
//   - request id: honors a valid X-Request-Id or generates a UUID
//   - panic recovery: converts a panic into a 500 ErrorResponse
//   - rate limit: token bucket (golang.org/x/time/rate), 429 with Retry-After
//   - logging: one structured line per request
//
// # System Endpoints
//
//	GET /          name, version, readiness and routes
//	GET /health    liveness, always 200
//	GET /ready     200 once serving, 503 while starting or shutting down
//	GET /metrics   Prometheus exposition
//
// # Errors
//
// Non-2xx responses carry an ErrorResponse. WriteErrorFromErr maps a
// structured error code to its status: INVALID_REQUEST 400, NOT_FOUND 404,
// CONFLICT 409, TIMEOUT 504, STEP_FAILED and ROLLBACK_INCOMPLETE 502,
// PROVIDER_UNAVAILABLE 503, anything else 500.
//
// # Configuration
//
// Environment variables:
//
//   - ADDRESS: listen address (default 127.0.0.1)
//   - PORT: listen port (default 8080)
//   - RATE_LIMIT: requests per second, burst twice that (default 20)
//   - MAX_BODY_BYTES: request body limit (default 1048576)
//   - SHUTDOWN_TIMEOUT_SECONDS: graceful shutdown limit (default 30)
//
// # Usage
//
//	s := server.New(
//	    server.WithName("gpupvd"),
//	    server.WithVersion(version),
//	    server.WithHandler(map[string]http.HandlerFunc{
//	        "/v1/devices": h.HandleDevices,
//	    }),
//	)
//	return s.Run(ctx)
package server
