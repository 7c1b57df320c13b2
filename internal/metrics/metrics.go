// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records vote, login and HTTP metrics.
type Collector struct {
	votes           *prometheus.CounterVec
	logins          *prometheus.CounterVec
	passwordResets  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_votes_total",
			Help: "Vote attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_logins_total",
			Help: "Login attempts by provider and result.",
		}, []string{"provider", "result"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_password_resets_total",
			Help: "Password reset requests and redemptions by stage and result.",
		}, []string{"stage", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ballotbox_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		c.votes,
		c.logins,
		c.passwordResets,
		c.httpRequests,
		c.requestDuration,
	)

	return c
}

// ObserveVote counts one vote attempt.
func (c *Collector) ObserveVote(outcome string) {
	c.votes.WithLabelValues(outcome).Inc()
}

// ObserveLogin counts one login attempt for provider.
func (c *Collector) ObserveLogin(provider string, success bool) {
	c.logins.WithLabelValues(provider, resultLabel(success)).Inc()
}

// ObservePasswordReset counts one password-reset step.
func (c *Collector) ObservePasswordReset(stage string, success bool) {
	c.passwordResets.WithLabelValues(stage, resultLabel(success)).Inc()
}

// ObserveRequest records a completed HTTP request.
func (c *Collector) ObserveRequest(route, method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler serves the Prometheus exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
