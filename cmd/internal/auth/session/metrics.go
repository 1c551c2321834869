package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session transitions. A nil *Metrics records nothing.
type Metrics struct {
	logins       *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	logouts      *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	minted       prometheus.Counter
	swept        *prometheus.CounterVec
	revocations  prometheus.Gauge
}

// NewMetrics registers the session collectors on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "refreshes_total",
			Help: "Refresh attempts by result.",
		}, []string{"result"}),
		logouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "logouts_total",
			Help: "Logout attempts by result.",
		}, []string{"result"}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "authenticate_failures_total",
			Help: "Rejected access credentials by reason.",
		}, []string{"reason"}),
		minted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "access_credentials_minted_total",
			Help: "Access credentials minted.",
		}),
		swept: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eucl", Subsystem: "session", Name: "swept_total",
			Help: "Expired entries removed by the sweeper, by kind.",
		}, []string{"kind"}),
		revocations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "eucl", Subsystem: "session", Name: "revocations_tracked",
			Help: "Entries held by the in-memory revocation registry.",
		}),
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) logout(result string) {
	if m != nil {
		m.logouts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) authFailure(reason string) {
	if m != nil {
		m.authFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) mintedOne() {
	if m != nil {
		m.minted.Inc()
	}
}

func (m *Metrics) sweptN(kind string, n int64) {
	if m != nil && n > 0 {
		m.swept.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) trackRevocations(n int) {
	if m != nil {
		m.revocations.Set(float64(n))
	}
}
