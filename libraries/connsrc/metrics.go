// Copyright 2026 Dolthub, Inc.
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

package connsrc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics are the prometheus collectors a Pool reports to. A nil
// *PoolMetrics is valid and records nothing.
type PoolMetrics struct {
	cntCheckouts  prometheus.Counter
	cntDiscards   prometheus.Counter
	gaugeOpen     prometheus.Gauge
	histCheckWait prometheus.Histogram
}

func NewPoolMetrics(namespace string, labels prometheus.Labels) *PoolMetrics {
	return &PoolMetrics{
		cntCheckouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pool_checkouts",
			Help:        "Count of connections handed out by the pool",
			ConstLabels: labels,
		}),
		cntDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pool_discards",
			Help:        "Count of connections closed instead of being returned to the pool",
			ConstLabels: labels,
		}),
		gaugeOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_open_connections",
			Help:        "Number of connections currently owned by the pool, idle or checked out",
			ConstLabels: labels,
		}),
		histCheckWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "pool_checkout_wait_seconds",
			Help:        "Histogram of time spent waiting for a free pool slot",
			ConstLabels: labels,
			Buckets:     []float64{0.0001, 0.001, 0.01, 0.1, 1.0, 10.0},
		}),
	}
}

// Register registers every collector with |reg|.
func (m *PoolMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.cntCheckouts, m.cntDiscards, m.gaugeOpen, m.histCheckWait} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *PoolMetrics) checkedOut() {
	if m != nil {
		m.cntCheckouts.Inc()
	}
}

func (m *PoolMetrics) opened() {
	if m != nil {
		m.gaugeOpen.Inc()
	}
}

func (m *PoolMetrics) discard() {
	if m != nil {
		m.cntDiscards.Inc()
		m.gaugeOpen.Dec()
	}
}

func (m *PoolMetrics) observeWait(d time.Duration) {
	if m != nil {
		m.histCheckWait.Observe(d.Seconds())
	}
}
