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

	"github.com/google/uuid"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int,
	code gpuerrors.ErrorCode, message string, retryable bool, details map[string]any) {

	requestID := RequestID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}

	serializer.RespondJSON(w, statusCode, ErrorResponse{
		Code:      string(code),
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Retryable: retryable,
	})
}

// WriteErrorFromErr maps err's code to an HTTP status and writes it. The
// structured error context is merged into details.
func WriteErrorFromErr(w http.ResponseWriter, r *http.Request, err error, details map[string]any) {
	code := gpuerrors.CodeOf(err)
	if code == "" {
		code = gpuerrors.ErrCodeInternal
	}
	merged := gpuerrors.ContextOf(err)
	if merged == nil {
		merged = make(map[string]any, len(details))
	}
	for k, v := range details {
		merged[k] = v
	}
	if len(merged) == 0 {
		merged = nil
	}
	WriteError(w, r, statusFor(code), code, err.Error(), code.Retryable(), merged)
}

func statusFor(code gpuerrors.ErrorCode) int {
	switch code {
	case gpuerrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case gpuerrors.ErrCodeNotFound:
		return http.StatusNotFound
	case gpuerrors.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case gpuerrors.ErrCodeConflict:
		return http.StatusConflict
	case gpuerrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case gpuerrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case gpuerrors.ErrCodeUnavailable, gpuerrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case gpuerrors.ErrCodeStepFailed, gpuerrors.ErrCodeRollbackIncomplete:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
