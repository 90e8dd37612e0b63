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
	"net/http"
	"time"

	gpuerrors "github.com/smart-gpu-pv/gpupv/pkg/errors"
	"github.com/smart-gpu-pv/gpupv/pkg/serializer"
)

// HealthResponse is the body of the health and readiness endpoints.
type HealthResponse struct {
	Status    string         `json:"status" yaml:"status"`
	Version   string         `json:"version,omitempty" yaml:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Reason    string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

func (s *Server) healthResponse(status string) HealthResponse {
	resp := HealthResponse{
		Status:    status,
		Version:   s.config.Version,
		Timestamp: time.Now().UTC(),
	}
	if s.status != nil {
		resp.Details = s.status()
	}
	return resp
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, gpuerrors.ErrCodeMethodNotAllowed,
			"method not allowed", false, map[string]any{"method": r.Method})
		return
	}
	serializer.RespondJSON(w, http.StatusOK, s.healthResponse("healthy"))
}

// handleReady reports whether the server accepts configure requests. It
// turns false once shutdown begins so in-flight runs can drain.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, gpuerrors.ErrCodeMethodNotAllowed,
			"method not allowed", false, map[string]any{"method": r.Method})
		return
	}

	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if !ready {
		resp := s.healthResponse("not_ready")
		resp.Reason = "server is starting or draining"
		serializer.RespondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, s.healthResponse("ready"))
}
