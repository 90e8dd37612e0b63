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
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	s := New(
		WithName("gpupvd-test"),
		WithVersion("1.2.3"),
		WithHandler(map[string]http.HandlerFunc{
			"/v1/test": func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		}),
	)

	if s.config.Name != "gpupvd-test" || s.config.Version != "1.2.3" {
		t.Errorf("options not applied: %+v", s.config)
	}
	if s.httpServer == nil || s.rateLimiter == nil {
		t.Fatal("expected http server and rate limiter")
	}
	if len(s.config.Handlers) != 1 {
		t.Errorf("expected 1 handler, got %d", len(s.config.Handlers))
	}
}

func TestRoutes(t *testing.T) {
	s := New(WithHandler(map[string]http.HandlerFunc{
		"/v1/test": func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") },
	}))
	s.SetReady(true)

	tests := []struct {
		path   string
		status int
		header string
	}{
		{"/", http.StatusOK, ""},
		{"/health", http.StatusOK, ""},
		{"/ready", http.StatusOK, ""},
		{"/metrics", http.StatusOK, ""},
		{"/v1/test", http.StatusOK, "X-Request-Id"},
		{"/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.header != "" && rec.Header().Get(tt.header) == "" {
				t.Errorf("expected %s header from middleware", tt.header)
			}
		})
	}
}

func TestDefaultRouteListsRoutes(t *testing.T) {
	s := New(WithName("gpupvd"), WithHandler(map[string]http.HandlerFunc{
		"/v1/vms": func(http.ResponseWriter, *http.Request) {},
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp struct {
		Name   string   `json:"name"`
		Routes []string `json:"routes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Name != "gpupvd" {
		t.Errorf("expected name gpupvd, got %s", resp.Name)
	}
	if !strings.Contains(strings.Join(resp.Routes, ","), "/v1/vms") {
		t.Errorf("expected /v1/vms in routes, got %v", resp.Routes)
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := New()

	tests := []struct {
		name   string
		ready  bool
		status int
	}{
		{"ready", true, http.StatusOK},
		{"not ready", false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetReady(tt.ready)
			rec := httptest.NewRecorder()
			s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestHealthIncludesStatus(t *testing.T) {
	s := New(WithVersion("1.2.3"), WithStatus(func() map[string]any {
		return map[string]any{"configuring": []string{"dev"}}
	}))
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "1.2.3" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if _, ok := resp.Details["configuring"]; !ok {
		t.Errorf("expected configuring in details, got %v", resp.Details)
	}
}

func TestHealthRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	New().handleHealth(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	cfg := NewConfig()
	cfg.ShutdownTimeout = 2 * time.Second
	s := New(WithConfig(cfg))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url) //nolint:noctx // test
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
