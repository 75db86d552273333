package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Ledger records wallet ledger activity. A nil *Ledger is a valid no-op recorder.
type Ledger struct {
	commissionCredited *prometheus.CounterVec
	pointsCredited     prometheus.Counter
	settlements        *prometheus.CounterVec
	shortfalls         prometheus.Counter
	withdrawals        *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	duration           *prometheus.HistogramVec
}

// NewLedger registers the ledger metrics on the provided registerer.
func NewLedger(reg prometheus.Registerer) *Ledger {
	if reg == nil {
		return &Ledger{}
	}
	commissionCredited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commission_amount_total",
		Help: "Commission amount moved through the ledger, in major currency units.",
	}, []string{"stage"})
	pointsCredited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_points_credited_total",
		Help: "Loyalty points credited to wallets.",
	})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlements_total",
		Help: "Delivery confirmation attempts by outcome.",
	}, []string{"outcome"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_settlement_shortfalls_total",
		Help: "Settlements where the pending balance did not cover the commission.",
	})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_withdrawals_total",
		Help: "Withdrawal lifecycle events by status.",
	}, []string{"status"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_webhook_events_total",
		Help: "Inbound gateway events by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(commissionCredited, pointsCredited, settlements, shortfalls, withdrawals, webhookEvents, duration)
	return &Ledger{
		commissionCredited: commissionCredited,
		pointsCredited:     pointsCredited,
		settlements:        settlements,
		shortfalls:         shortfalls,
		withdrawals:        withdrawals,
		webhookEvents:      webhookEvents,
		duration:           duration,
	}
}

// AddCommission records commission reaching the given stage (pending, settled, reversed).
func (l *Ledger) AddCommission(stage string, amount decimal.Decimal) {
	if l == nil || l.commissionCredited == nil {
		return
	}
	l.commissionCredited.WithLabelValues(normalizeLabel(stage)).Add(amount.InexactFloat64())
}

// AddPoints records credited loyalty points.
func (l *Ledger) AddPoints(points int64) {
	if l == nil || l.pointsCredited == nil || points <= 0 {
		return
	}
	l.pointsCredited.Add(float64(points))
}

// IncSettlement counts a delivery confirmation outcome.
func (l *Ledger) IncSettlement(outcome string) {
	if l == nil || l.settlements == nil {
		return
	}
	l.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncShortfall counts a settlement anomaly.
func (l *Ledger) IncShortfall() {
	if l == nil || l.shortfalls == nil {
		return
	}
	l.shortfalls.Inc()
}

// IncWithdrawal counts a withdrawal status change.
func (l *Ledger) IncWithdrawal(status string) {
	if l == nil || l.withdrawals == nil {
		return
	}
	l.withdrawals.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncWebhook counts a webhook outcome.
func (l *Ledger) IncWebhook(outcome string) {
	if l == nil || l.webhookEvents == nil {
		return
	}
	l.webhookEvents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long an operation took since start.
func (l *Ledger) ObserveDuration(operation string, start time.Time) {
	if l == nil || l.duration == nil {
		return
	}
	l.duration.WithLabelValues(normalizeLabel(operation)).Observe(time.Since(start).Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
