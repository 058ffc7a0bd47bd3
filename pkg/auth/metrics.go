package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used by Metrics.
const (
	outcomeSuccess       = "success"
	outcomeFetchError    = "fetch_error"
	outcomeParseError    = "parse_error"
	outcomeInvalidState  = "invalid_state"
	outcomeExchangeError = "exchange_error"
	outcomeDenied        = "denied"
	outcomeError         = "error"
)

// Metrics records profile fetch and login outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	profileFetches  *prometheus.CounterVec
	profileDuration prometheus.Histogram
	logins          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		profileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lineauth",
			Name:      "profile_fetch_total",
			Help:      "LINE profile fetches by outcome.",
		}, []string{"outcome"}),
		profileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lineauth",
			Name:      "profile_fetch_duration_seconds",
			Help:      "Duration of LINE profile requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lineauth",
			Name:      "login_total",
			Help:      "LINE login callbacks by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.profileFetches, m.profileDuration, m.logins} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeProfile(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.profileFetches.WithLabelValues(outcome).Inc()
	m.profileDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}
