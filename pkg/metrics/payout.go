package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PayoutRunMetrics records outcomes of settlement runs.
type PayoutRunMetrics struct {
	runDuration *prometheus.HistogramVec
	payouts     *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	netMinor    *prometheus.CounterVec
}

// NewPayoutRunMetrics registers the payout run metrics on the provided
// registerer.
func NewPayoutRunMetrics(reg prometheus.Registerer) *PayoutRunMetrics {
	if reg == nil {
		return &PayoutRunMetrics{}
	}
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_run_duration_seconds",
		Help:    "Duration of payout settlement runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_total",
		Help: "Payouts created by settlement runs, by final status.",
	}, []string{"status"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_creators_skipped_total",
		Help: "Creator groups skipped by settlement runs, by reason.",
	}, []string{"reason"})
	netMinor := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_net_minor_total",
		Help: "Net minor units settled, by currency.",
	}, []string{"currency"})
	reg.MustRegister(runDuration, payouts, skipped, netMinor)
	return &PayoutRunMetrics{
		runDuration: runDuration,
		payouts:     payouts,
		skipped:     skipped,
		netMinor:    netMinor,
	}
}

// ObserveRunDuration records how long a settlement run took.
func (p *PayoutRunMetrics) ObserveRunDuration(mode string, duration time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

// IncPayout counts one payout outcome.
func (p *PayoutRunMetrics) IncPayout(status string) {
	if p == nil || p.payouts == nil {
		return
	}
	p.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncSkipped counts one skipped creator group.
func (p *PayoutRunMetrics) IncSkipped(reason string) {
	if p == nil || p.skipped == nil {
		return
	}
	p.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// AddNetMinor accumulates settled net amounts per currency.
func (p *PayoutRunMetrics) AddNetMinor(currency string, amount int64) {
	if p == nil || p.netMinor == nil || amount <= 0 {
		return
	}
	p.netMinor.WithLabelValues(normalizeLabel(currency)).Add(float64(amount))
}
