package httpapi

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authd "github.com/skillforge/authd"
)

// metrics holds the service's Prometheus instruments on a private
// registry so tests can build multiple servers without duplicate
// registration panics.
type metrics struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	refreshes     *prometheus.CounterVec
	logouts       prometheus.Counter
	revokedHits   prometheus.Counter
	rateLimited   prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_registrations_total",
			Help: "Accounts created.",
		}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_token_refreshes_total",
			Help: "Access token refreshes by result.",
		}, []string{"result"}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_logouts_total",
			Help: "Logouts performed.",
		}),
		revokedHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_revoked_token_rejections_total",
			Help: "Requests rejected because the access token was revoked.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "authd_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

func (m *metrics) authRejected(err error) {
	if errors.Is(err, authd.ErrTokenRevoked) {
		m.revokedHits.Inc()
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
