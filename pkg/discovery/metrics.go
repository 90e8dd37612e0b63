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

package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	strategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpupv_discovery_strategy_total",
			Help: "Total number of discovery strategy attempts",
		},
		[]string{"strategy", "result"}, // result: success, error
	)

	discoveredDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpupv_discovered_devices",
			Help: "Number of partitionable GPUs in the last discovered catalog",
		},
	)
)
