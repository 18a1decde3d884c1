// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package metrics provides Prometheus metrics of DAG runs and task attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trends"

// Metrics holds Prometheus collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	TaskAttempts *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TaskRetries  *prometheus.CounterVec
	Runs         *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	RunsInFlight prometheus.Gauge
	Alerts       *prometheus.CounterVec
}

// New creates and registers all collectors on new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TaskAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_attempts_total",
				Help:      "Total number of finished task attempts by final status",
			},
			[]string{"dag_id", "task_id", "status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_attempt_duration_seconds",
				Help:      "Duration of task attempts",
				Buckets:   []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"dag_id", "task_id"},
		),
		TaskRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_retries_total",
				Help:      "Total number of scheduled task retries",
			},
			[]string{"dag_id", "task_id"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dag_runs_total",
				Help:      "Total number of finished DAG runs by status",
			},
			[]string{"dag_id", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dag_run_duration_seconds",
				Help:      "Duration of DAG runs",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"dag_id"},
		),
		RunsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dag_runs_in_flight",
				Help:      "Number of DAG runs currently in progress",
			},
		),
		Alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of sent alerts by kind and result",
			},
			[]string{"dag_id", "kind", "result"},
		),
	}
}

// Registry returns registry with all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns HTTP handler which exposes metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTaskAttempt records finished task attempt. Nil Metrics is a no-op.
func (m *Metrics) ObserveTaskAttempt(dagId, taskId, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TaskAttempts.WithLabelValues(dagId, taskId, status).Inc()
	m.TaskDuration.WithLabelValues(dagId, taskId).Observe(duration.Seconds())
}

// ObserveRetry records scheduled task retry.
func (m *Metrics) ObserveRetry(dagId, taskId string) {
	if m == nil {
		return
	}
	m.TaskRetries.WithLabelValues(dagId, taskId).Inc()
}

// RunStarted increments in-flight runs gauge.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// RunFinished records finished DAG run.
func (m *Metrics) RunFinished(dagId, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.Runs.WithLabelValues(dagId, status).Inc()
	m.RunDuration.WithLabelValues(dagId).Observe(duration.Seconds())
}

// ObserveAlert records sent (or failed to send) alert.
func (m *Metrics) ObserveAlert(dagId, kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "error"
	}
	m.Alerts.WithLabelValues(dagId, kind, result).Inc()
}
