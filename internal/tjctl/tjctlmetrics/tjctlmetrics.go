// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package tjctlmetrics exposes Prometheus metrics for imports and the trades they produce.
package tjctlmetrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/shopspring/decimal"
)

const (
	// ResultSuccess labels an import that completed.
	ResultSuccess = "success"
	// ResultFailure labels an import that returned an error.
	ResultFailure = "failure"
)

// Metrics holds the tjctl collectors on a dedicated registry.
type Metrics struct {
	registry          *prometheus.Registry
	importTotal       *prometheus.CounterVec
	importDuration    *prometheus.HistogramVec
	executionsRead    *prometheus.CounterVec
	executionsNew     *prometheus.CounterVec
	trades            *prometheus.GaugeVec
	issues            *prometheus.GaugeVec
	realizedPnl       *prometheus.GaugeVec
	lastImportSeconds *prometheus.GaugeVec
}

// New returns a new Metrics with its own registry.
//
// The registry also carries the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		importTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjctl_import_total",
				Help: "Total number of account imports by result",
			},
			[]string{"account", "result"},
		),
		importDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tjctl_import_duration_seconds",
				Help:    "Account import duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"account"},
		),
		executionsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjctl_executions_read_total",
				Help: "Total number of executions read from broker files",
			},
			[]string{"account"},
		),
		executionsNew: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjctl_executions_new_total",
				Help: "Total number of executions that were not already stored",
			},
			[]string{"account"},
		),
		trades: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tjctl_trades",
				Help: "Number of matched trades after the latest import by status",
			},
			[]string{"account", "status"},
		),
		issues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tjctl_import_issues",
				Help: "Number of issues found by the latest import by kind",
			},
			[]string{"account", "kind"},
		),
		realizedPnl: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tjctl_realized_pnl",
				Help: "Realized P&L of all matched trades after the latest import, including partial exits of open trades",
			},
			[]string{"account"},
		),
		lastImportSeconds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tjctl_last_import_timestamp_seconds",
				Help: "Unix time of the latest successful import",
			},
			[]string{"account"},
		),
	}
}

// ObserveImport records the result and duration of an account import.
func (m *Metrics) ObserveImport(accountID string, start time.Time, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.importTotal.WithLabelValues(accountID, result).Inc()
	m.importDuration.WithLabelValues(accountID).Observe(time.Since(start).Seconds())
	if err == nil {
		m.lastImportSeconds.WithLabelValues(accountID).SetToCurrentTime()
	}
}

// AddExecutions records executions read from broker files and how many were new.
func (m *Metrics) AddExecutions(accountID string, readCount int, newCount int) {
	m.executionsRead.WithLabelValues(accountID).Add(float64(readCount))
	m.executionsNew.WithLabelValues(accountID).Add(float64(newCount))
}

// SetTrades sets the number of trades of the account with the status.
func (m *Metrics) SetTrades(accountID string, status string, count int) {
	m.trades.WithLabelValues(accountID, status).Set(float64(count))
}

// SetIssues sets the number of issues of the account with the kind.
func (m *Metrics) SetIssues(accountID string, kind string, count int) {
	m.issues.WithLabelValues(accountID, kind).Set(float64(count))
}

// SetRealizedPnl sets the realized P&L of the account.
func (m *Metrics) SetRealizedPnl(accountID string, realizedPnl decimal.Decimal) {
	m.realizedPnl.WithLabelValues(accountID).Set(realizedPnl.InexactFloat64())
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push pushes the tjctl metrics to a Prometheus Pushgateway under the job,
// replacing the metrics of the job's previous push.
//
// The Go runtime and process collectors are not pushed.
func (m *Metrics) Push(ctx context.Context, pushgatewayURL string, job string) error {
	pusher := push.New(pushgatewayURL, job)
	for _, collector := range m.collectors() {
		pusher = pusher.Collector(collector)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", pushgatewayURL, err)
	}
	return nil
}

// Handler returns an http.Handler that serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// *** PRIVATE ***

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.importTotal,
		m.importDuration,
		m.executionsRead,
		m.executionsNew,
		m.trades,
		m.issues,
		m.realizedPnl,
		m.lastImportSeconds,
	}
}
