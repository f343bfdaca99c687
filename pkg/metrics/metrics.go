// Package metrics records authentication workflow outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lborres/bantay/core"
)

var _ core.Metrics = (*Collector)(nil)

// Collector implements core.Metrics on a Prometheus registry.
type Collector struct {
	confirmations   *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
	methodChanges   *prometheus.CounterVec
	emails          *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewCollector registers the bantay metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_confirmations_total",
			Help: "Sensitive action confirmations by kind and result.",
		}, []string{"kind", "result"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_sessions_revoked_total",
			Help: "Sessions revoked by reason.",
		}, []string{"reason"}),
		methodChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_auth_method_changes_total",
			Help: "Sign-in method changes by operation and result.",
		}, []string{"op", "result"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_emails_total",
			Help: "Outgoing emails by template and delivery result.",
		}, []string{"template", "success"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_session_cache_lookups_total",
			Help: "Session cache lookups by outcome.",
		}, []string{"hit"}),
	}

	reg.MustRegister(c.confirmations, c.sessionsRevoked, c.methodChanges, c.emails, c.cacheLookups)
	return c
}

func (c *Collector) Confirmation(kind core.VerificationKind, result string) {
	c.confirmations.WithLabelValues(string(kind), result).Inc()
}

func (c *Collector) SessionsRevoked(reason string, n int) {
	if n <= 0 {
		return
	}
	c.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) MethodChange(op, result string) {
	c.methodChanges.WithLabelValues(op, result).Inc()
}

func (c *Collector) EmailSent(template string, err error) {
	c.emails.WithLabelValues(template, strconv.FormatBool(err == nil)).Inc()
}

func (c *Collector) CacheLookup(hit bool) {
	c.cacheLookups.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Result labels a workflow outcome: "ok" or the error code.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return core.CodeOf(err)
}
