// Package metrics exposes agent activity as Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnema/forum-agent/internal/ports"
)

const namespace = "forum_agent"

type Collector struct {
	registry *prometheus.Registry

	notifications   *prometheus.CounterVec
	connectAttempts prometheus.Counter
	connected       prometheus.Counter
	reconnects      *prometheus.CounterVec
	tasksStarted    *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	tasksRunning    *prometheus.GaugeVec
	postCycles      *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ ports.Metrics = (*Collector)(nil)

func NewCollector(version string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications seen by the router, by gate outcome.",
		}, []string{"outcome"}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connect_attempts_total",
			Help:      "Event stream connection attempts.",
		}),
		connected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connected_total",
			Help:      "Event stream connections that reached the open state.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Event stream reconnects, by disconnect reason.",
		}, []string{"reason"}),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Background tasks started, by kind.",
		}, []string{"kind"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Background tasks finished, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		tasksRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Background tasks currently running, by kind.",
		}, []string{"kind"}),
		postCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_cycles_total",
			Help:      "Proactive post cycles, by result status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_http_requests_total",
			Help:      "Admin API requests.",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admin_http_request_duration_seconds",
			Help:      "Admin API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		info,
		c.notifications,
		c.connectAttempts,
		c.connected,
		c.reconnects,
		c.tasksStarted,
		c.tasksFinished,
		c.tasksRunning,
		c.postCycles,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) NotificationGated(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) StreamConnectAttempt() {
	c.connectAttempts.Inc()
}

func (c *Collector) StreamConnected() {
	c.connected.Inc()
}

func (c *Collector) StreamReconnect(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	c.reconnects.WithLabelValues(reason).Inc()
}

func (c *Collector) TaskStarted(kind string) {
	c.tasksStarted.WithLabelValues(kind).Inc()
	c.tasksRunning.WithLabelValues(kind).Inc()
}

func (c *Collector) TaskFinished(kind, outcome string) {
	c.tasksFinished.WithLabelValues(kind, outcome).Inc()
	c.tasksRunning.WithLabelValues(kind).Dec()
}

func (c *Collector) PostCycle(status string) {
	c.postCycles.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records admin API request counts and latencies.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}
