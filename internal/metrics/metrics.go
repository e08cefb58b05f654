/*
 * Copyright (c) 2023. Anton Starikov -- All Rights Reserved
 *
 * This file is part of OPTSTART project.
 *
 * OPTSTART is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package metrics exposes Prometheus instruments for start decisions,
// warm-up cycles and calibration. A nil *Metrics records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antst/optstart/internal/thermo_model"
)

const namespace = "optstart"

type Metrics struct {
	gatherer       prometheus.Gatherer
	leadTime       *prometheus.GaugeVec
	starts         *prometheus.CounterVec
	warmup         *prometheus.HistogramVec
	abandoned      *prometheus.CounterVec
	degraded       *prometheus.CounterVec
	calibrations   *prometheus.CounterVec
	calibrationMSE *prometheus.GaugeVec
	parameters     *prometheus.GaugeVec
	resetSetpoint  prometheus.Gauge
	resetRequests  prometheus.Gauge
}

// New registers the instruments with reg. With prometheus.DefaultRegisterer
// the default gatherer is served by Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatherer: prometheus.DefaultGatherer,
		leadTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lead_time_minutes",
			Help:      "Last predicted lead time before occupancy, clamped.",
		}, []string{"zone"}),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "equipment_starts_total",
			Help:      "Start commands issued.",
		}, []string{"zone"}),
		warmup: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warmup_minutes",
			Help:      "Observed warm-up durations of completed cycles.",
			Buckets:   []float64{10, 20, 30, 45, 60, 90, 120, 180, 240},
		}, []string{"zone"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_abandoned_total",
			Help:      "Warm-ups stopped after exceeding the maximum duration.",
		}, []string{"zone"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Evaluations that fell back to the earliest allowed start.",
		}, []string{"zone"}),
		calibrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Calibration passes by result.",
		}, []string{"zone", "result"}),
		calibrationMSE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_mse",
			Help:      "Mean squared error of the last successful calibration, minutes².",
		}, []string{"zone"}),
		parameters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_parameter",
			Help:      "Fitted physical model coefficients.",
		}, []string{"zone", "param"}),
		resetSetpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reset_setpoint",
			Help:      "Current trim-and-respond setpoint.",
		}),
		resetRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reset_requests",
			Help:      "Requests counted in the last trim-and-respond cycle.",
		}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	reg.MustRegister(
		m.leadTime,
		m.starts,
		m.warmup,
		m.abandoned,
		m.degraded,
		m.calibrations,
		m.calibrationMSE,
		m.parameters,
		m.resetSetpoint,
		m.resetRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) LeadTime(zone string, minutes float64) {
	if m == nil {
		return
	}
	m.leadTime.WithLabelValues(zone).Set(minutes)
}

func (m *Metrics) EquipmentStarted(zone string) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(zone).Inc()
}

func (m *Metrics) CycleCompleted(zone string, minutes float64) {
	if m == nil {
		return
	}
	m.warmup.WithLabelValues(zone).Observe(minutes)
}

func (m *Metrics) CycleAbandoned(zone string) {
	if m == nil {
		return
	}
	m.abandoned.WithLabelValues(zone).Inc()
}

func (m *Metrics) Degraded(zone string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(zone).Inc()
}

func (m *Metrics) Calibrated(zone string, res thermo_model.CalibrationResult, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.calibrations.WithLabelValues(zone, "error").Inc()
		return
	}
	m.calibrations.WithLabelValues(zone, "ok").Inc()
	m.calibrationMSE.WithLabelValues(zone).Set(res.Loss)
	m.parameters.WithLabelValues(zone, "a").Set(res.Parameters.TimePerDegree)
	m.parameters.WithLabelValues(zone, "b").Set(res.Parameters.OutdoorInfluence)
	m.parameters.WithLabelValues(zone, "d").Set(res.Parameters.Offset)
}

func (m *Metrics) ResetAdjusted(requests int, setpoint float64) {
	if m == nil {
		return
	}
	m.resetRequests.Set(float64(requests))
	m.resetSetpoint.Set(setpoint)
}
