package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for conversation turns.
type ChatMetrics struct {
	turnsTotal   *prometheus.CounterVec
	crmSyncTotal *prometheus.CounterVec
	llmLatency   prometheus.Histogram
	leadScore    prometheus.Histogram
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns processed",
		}, []string{"state", "outcome"}),
		crmSyncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "crm",
			Name:      "sync_total",
			Help:      "Total CRM upsert attempts",
		}, []string{"status"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "realty",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Latency of language model calls",
			Buckets:   prometheus.DefBuckets,
		}),
		leadScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "realty",
			Subsystem: "chat",
			Name:      "lead_score",
			Help:      "Distribution of computed lead scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.crmSyncTotal, m.llmLatency, m.leadScore)
	return m
}

func (m *ChatMetrics) ObserveTurn(state, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state, outcome).Inc()
}

func (m *ChatMetrics) ObserveCRMSync(status string) {
	if m == nil {
		return
	}
	m.crmSyncTotal.WithLabelValues(status).Inc()
}

func (m *ChatMetrics) ObserveLLMLatency(seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.Observe(seconds)
}

func (m *ChatMetrics) ObserveLeadScore(score int) {
	if m == nil {
		return
	}
	m.leadScore.Observe(float64(score))
}
