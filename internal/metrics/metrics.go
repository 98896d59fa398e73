// Package metrics exports per-cycle monitoring counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"donna/internal/workflow"
)

// Metrics holds the collectors and the registry they are registered on.
// It implements workflow.CycleObserver.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	errorCount     prometheus.Gauge
	conflicts      *prometheus.CounterVec
	openConflicts  prometheus.Gauge
	importantItems prometheus.Gauge
	emails         prometheus.Gauge
	events         prometheus.Gauge
	actions        *prometheus.CounterVec
	lastCheck      prometheus.Gauge

	// CompletedAt of the newest action result already counted.
	lastAction time.Time
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donna_cycles_total",
			Help: "Completed workflow cycles by outcome",
		}, []string{"outcome"}),
		errorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_error_count",
			Help: "Consecutive error count of the workflow state",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donna_conflicts_detected_total",
			Help: "Conflict detections per cycle by type and severity",
		}, []string{"type", "severity"}),
		openConflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_conflicts",
			Help: "Conflicts found in the last cycle",
		}),
		importantItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_important_items",
			Help: "Important items found in the last cycle",
		}),
		emails: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_emails",
			Help: "Emails fetched in the last cycle",
		}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_calendar_events",
			Help: "Calendar events fetched in the last cycle",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donna_actions_total",
			Help: "Executed actions by type and success",
		}, []string{"type", "success"}),
		lastCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "donna_last_check_timestamp_seconds",
			Help: "Unix time of the last completed monitor step",
		}),
	}
	m.registry.MustRegister(m.cycles, m.errorCount, m.conflicts, m.openConflicts,
		m.importantItems, m.emails, m.events, m.actions, m.lastCheck)
	return m
}

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records the outcome of one graph run.
func (m *Metrics) ObserveCycle(st *workflow.State, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.errorCount.Set(float64(st.ErrorCount))

	for _, c := range st.Conflicts {
		m.conflicts.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
	}
	m.openConflicts.Set(float64(len(st.Conflicts)))
	m.importantItems.Set(float64(len(st.ImportantItems)))
	m.emails.Set(float64(len(st.Emails)))
	m.events.Set(float64(len(st.CalendarEvents)))

	for _, r := range st.ActionResults {
		if !r.CompletedAt.After(m.lastAction) {
			continue
		}
		m.actions.WithLabelValues(r.Action.Type, strconv.FormatBool(r.Success)).Inc()
		m.lastAction = r.CompletedAt
	}
	if !st.LastCheck.IsZero() {
		m.lastCheck.Set(float64(st.LastCheck.Unix()))
	}
}
