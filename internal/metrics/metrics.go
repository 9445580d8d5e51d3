// Package metrics collects and exposes Prometheus metrics for the
// monitoring pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface the pipeline uses to report tick outcomes.
type Recorder interface {
	RecordTick(success bool)
	RecordFetchFailure()
	RecordNewPosts(count int)
	RecordNotificationSent()
	RecordNotificationFailed()
	RecordPushedPosts(count int)
}

// Collector implements Recorder backed by Prometheus counters.
type Collector struct {
	ticks         *prometheus.CounterVec
	fetchFailures prometheus.Counter
	newPosts      prometheus.Counter
	notifications *prometheus.CounterVec
	pushedPosts   prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyword_bot_ticks_total",
			Help: "Monitoring ticks by result.",
		}, []string{"result"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyword_bot_fetch_failures_total",
			Help: "Feed fetch failures.",
		}),
		newPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyword_bot_new_posts_total",
			Help: "Newly stored posts.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyword_bot_notifications_total",
			Help: "Notification attempts by status.",
		}, []string{"status"}),
		pushedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyword_bot_pushed_posts_total",
			Help: "Posts marked as pushed.",
		}),
	}

	reg.MustRegister(c.ticks, c.fetchFailures, c.newPosts, c.notifications, c.pushedPosts)
	return c
}

// RecordTick counts one completed tick.
func (c *Collector) RecordTick(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.ticks.WithLabelValues(result).Inc()
}

// RecordFetchFailure counts one feed fetch failure.
func (c *Collector) RecordFetchFailure() {
	c.fetchFailures.Inc()
}

// RecordNewPosts counts newly stored posts.
func (c *Collector) RecordNewPosts(count int) {
	c.newPosts.Add(float64(count))
}

// RecordNotificationSent counts one successful notification.
func (c *Collector) RecordNotificationSent() {
	c.notifications.WithLabelValues("sent").Inc()
}

// RecordNotificationFailed counts one failed notification.
func (c *Collector) RecordNotificationFailed() {
	c.notifications.WithLabelValues("failed").Inc()
}

// RecordPushedPosts counts posts marked pushed in a tick.
func (c *Collector) RecordPushedPosts(count int) {
	c.pushedPosts.Add(float64(count))
}

// Handler returns the HTTP handler serving the metrics exposition for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
