package metrics

import (
	"net/http"

	"macro-meal-engine/internal/session"
	"macro-meal-engine/internal/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes engine activity as Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	generations   *prometheus.CounterVec
	chatTurns     *prometheus.CounterVec
	paramChanges  prometheus.Counter
	tokens        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	status        *prometheus.GaugeVec
	targetCalorie prometheus.Gauge
}

// NewCollector creates a collector on its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meal_engine_generations_total",
			Help: "Finished meal plan generations by result.",
		}, []string{"result"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meal_engine_chat_turns_total",
			Help: "Chat turns appended by role.",
		}, []string{"role"}),
		paramChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meal_engine_param_changes_total",
			Help: "Changes of the generation parameters.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meal_engine_llm_tokens_total",
			Help: "Tokens consumed by planning service calls.",
		}, []string{"agent", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meal_engine_llm_latency_seconds",
			Help:    "Latency of planning service calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"agent"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meal_engine_status",
			Help: "1 for the current request status, 0 otherwise.",
		}, []string{"status"}),
		targetCalorie: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meal_engine_target_calories",
			Help: "Current daily calorie target.",
		}),
	}

	c.registry.MustRegister(
		c.generations, c.chatTurns, c.paramChanges, c.tokens, c.latency, c.status, c.targetCalorie,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.setStatus(session.StatusIdle)
	return c
}

// Observe is a session.Subscriber.
func (c *Collector) Observe(prev, next session.State, action session.Action) {
	switch a := action.(type) {
	case session.GenerationSucceeded:
		if a.Plan != nil {
			c.generations.WithLabelValues("success").Inc()
		}
	case session.GenerationFailed:
		c.generations.WithLabelValues("error").Inc()
	case session.ChatMessageAppended:
		c.chatTurns.WithLabelValues(string(a.Message.Role)).Inc()
	}
	if prev.Params != next.Params {
		c.paramChanges.Inc()
	}
	if prev.Status != next.Status {
		c.setStatus(next.Status)
	}
	c.targetCalorie.Set(float64(next.Params.Calories))
}

// RecordMeta implements shared.MetaRecorder.
func (c *Collector) RecordMeta(meta shared.AgentMeta) error {
	c.tokens.WithLabelValues(meta.AgentName, "prompt").Add(float64(meta.Usage.PromptTokens))
	c.tokens.WithLabelValues(meta.AgentName, "completion").Add(float64(meta.Usage.CompletionTokens))
	c.latency.WithLabelValues(meta.AgentName).Observe(meta.Latency.Seconds())
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) setStatus(current session.Status) {
	for _, s := range []session.Status{session.StatusIdle, session.StatusLoading, session.StatusSuccess, session.StatusError} {
		v := 0.0
		if s == current {
			v = 1
		}
		c.status.WithLabelValues(string(s)).Set(v)
	}
}
