// Package metrics counts what the engines do on a private prometheus registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gitlab.com/auditker/auditk"
)

// Metrics implements the observer interfaces of the matcher cache and the
// traffic classifier
type Metrics struct {
	registry *prometheus.Registry

	classified   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	saves        *prometheus.CounterVec
	journal      *prometheus.CounterVec
	watchItems   prometheus.Gauge
	vulns        prometheus.Gauge
}

// New metrics on their own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditker_traffic_classified_total",
				Help: "Traffic events by tool origin and resulting action",
			},
			[]string{"origin", "action"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditker_cache_lookups_total",
				Help: "Match cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditker_document_saves_total",
				Help: "Document saves by result",
			},
			[]string{"result"},
		),
		journal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditker_journal_events_total",
				Help: "Journal events recorded by type",
			},
			[]string{"type"},
		),
		watchItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditker_watch_items",
			Help: "Watch items in the active project",
		}),
		vulns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditker_vulnerabilities",
			Help: "Live vulnerabilities in the active project",
		}),
	}
	m.registry.MustRegister(m.classified, m.cacheLookups, m.saves, m.journal, m.watchItems, m.vulns)
	return m
}

// Registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Classified counts a traffic classification
func (m *Metrics) Classified(origin auditk.ToolOrigin, action auditk.ClassifyAction) {
	m.classified.WithLabelValues(origin.String(), action.String()).Inc()
}

// CacheHit counts a cache hit
func (m *Metrics) CacheHit(cache string) {
	m.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss counts a cache miss
func (m *Metrics) CacheMiss(cache string) {
	m.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// Saved counts a document save and its result
func (m *Metrics) Saved(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.saves.WithLabelValues(result).Inc()
}

// Recorded counts a journal event
func (m *Metrics) Recorded(evt *auditk.JournalEvent) {
	m.journal.WithLabelValues(evt.Type.String()).Inc()
}

// SetSizes of the active project
func (m *Metrics) SetSizes(items, vulns int) {
	m.watchItems.Set(float64(items))
	m.vulns.Set(float64(vulns))
}

// Snapshot flattens every sample into "name{labels}" -> value
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			out[family.GetName()+labelString(metric.GetLabel())] = value(metric)
		}
	}
	return out, nil
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	s := "{"
	for i, l := range labels {
		if i > 0 {
			s += ","
		}
		s += l.GetName() + "=" + l.GetValue()
	}
	return s + "}"
}

func value(metric *dto.Metric) float64 {
	switch {
	case metric.GetCounter() != nil:
		return metric.GetCounter().GetValue()
	case metric.GetGauge() != nil:
		return metric.GetGauge().GetValue()
	}
	return 0
}
