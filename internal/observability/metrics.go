// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keyward/keyward/internal/auth"
)

// OutcomeOK labels a successful operation. Failures are labelled with the
// error kind.
const OutcomeOK = "ok"

// Metrics holds the credential service counters.
type Metrics struct {
	Operations           *prometheus.CounterVec
	SessionsOpened       prometheus.Counter
	SuspiciousFailures   prometheus.Counter
	ValidationRejections *prometheus.CounterVec
}

// NewMetrics creates and registers the credential service counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_auth_operations_total",
				Help: "Total number of credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyward_sessions_opened_total",
			Help: "Total number of sessions opened",
		}),
		SuspiciousFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyward_suspicious_login_failures_total",
			Help: "Login failures at or past the suspicious threshold",
		}),
		ValidationRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyward_validation_rejections_total",
				Help: "Requests rejected for malformed input by operation",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(m.Operations, m.SessionsOpened, m.SuspiciousFailures, m.ValidationRejections)
	return m
}

// SessionOpened implements auth.Observer.
func (m *Metrics) SessionOpened() { m.SessionsOpened.Inc() }

// SuspiciousLoginFailures implements auth.Observer.
func (m *Metrics) SuspiciousLoginFailures() { m.SuspiciousFailures.Inc() }

// RecordOperation counts one finished operation. A nil error counts as ok.
func (m *Metrics) RecordOperation(operation string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = auth.KindOf(err)
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	if outcome == auth.KindValidation {
		m.ValidationRejections.WithLabelValues(operation).Inc()
	}
}

// Compile-time interface check.
var _ auth.Observer = (*Metrics)(nil)
