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

package configurator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess    = "success"
	outcomeRolledBack = "rolled_back"
	outcomeFailed     = "failed"
	outcomeCanceled   = "canceled"
	outcomeNoop       = "noop"
)

var (
	configureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpupv_configure_total",
			Help: "Total number of configuration attempts",
		},
		[]string{"outcome"}, // success, rolled_back, failed, canceled, noop
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpupv_configure_step_duration_seconds",
			Help:    "Time taken by individual configuration steps",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"step"},
	)

	rollbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpupv_rollback_total",
			Help: "Total number of configuration rollbacks",
		},
		[]string{"result"}, // restored, incomplete
	)
)
