// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts intercepted requests and session invalidations.
type Metrics struct {
	requests      *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewMetrics registers the interceptor counters on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library_client",
			Name:      "requests_total",
			Help:      "Total number of requests sent through the interceptor",
		}, []string{"authorized"}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "library_client",
			Name:      "session_invalidations_total",
			Help:      "Total number of sessions cleared after a 401 response",
		}, []string{"redirect"}),
	}
}

func (m *Metrics) observeRequest(authorized bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.FormatBool(authorized)).Inc()
}

func (m *Metrics) observeInvalidation(redirect bool) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(strconv.FormatBool(redirect)).Inc()
}
