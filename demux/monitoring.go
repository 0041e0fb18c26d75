// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package demux

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flvdemux_sessions_active",
		Help: "Count of open demux sessions.",
	})

	consumedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flvdemux_consumed_bytes",
		Help: "Count of stream bytes consumed by demux sessions.",
	})

	emittedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flvdemux_emitted_records",
		Help: "Count of records emitted by demux sessions.",
	}, []string{"type"})

	bufferGrows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flvdemux_buffer_grows",
		Help: "Count of buffer reallocations.",
	})

	bufferShifts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flvdemux_buffer_shifts",
		Help: "Count of in-place buffer relocations.",
	})

	truncatedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flvdemux_truncated_records",
		Help: "Count of partial trailing records dropped at end of stream.",
	})

	sessionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flvdemux_session_errors",
		Help: "Count of fatal session errors.",
	}, []string{"kind", "phase"})

	bufferCapacity = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flvdemux_buffer_capacity_bytes",
		Help:    "Buffer capacity reached by a session when it was closed.",
		Buckets: prometheus.ExponentialBuckets(4*1024, 2, 14),
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		sessionsActiveGauge,
		consumedBytes,
		emittedRecords,
		bufferGrows,
		bufferShifts,
		truncatedRecords,
		sessionErrors,
		bufferCapacity,
	)
}
