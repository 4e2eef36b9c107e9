package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes recorded in creditbot_commands_total.
const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeBlacklisted = "blacklisted"
	OutcomeDenied      = "denied"
	OutcomeError       = "error"
	OutcomeUnknown     = "unknown"
)

// Credit grant sources recorded in creditbot_credits_granted_total.
const (
	SourceAdmin  = "admin"
	SourceRedeem = "redeem"
	SourceAPI    = "api"
)

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	Commands       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	CreditsGranted *prometheus.CounterVec
}

// NewMetrics registers the router collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditbot",
				Name:      "commands_total",
				Help:      "Total commands handled",
			},
			[]string{"command", "outcome"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "creditbot",
				Name:      "command_duration_seconds",
				Help:      "Duration of command handling in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"command"},
		),
		CreditsGranted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creditbot",
				Name:      "credits_granted_total",
				Help:      "Total credits added to balances",
			},
			[]string{"source"}, // "admin", "redeem", "api"
		),
	}
}

func (m *Metrics) observe(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
	m.Duration.WithLabelValues(command).Observe(d.Seconds())
}

// Granted records credits added to a balance. Safe on a nil Metrics.
func (m *Metrics) Granted(source string, credits int64) {
	if m == nil || credits <= 0 {
		return
	}
	m.CreditsGranted.WithLabelValues(source).Add(float64(credits))
}
