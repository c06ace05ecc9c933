package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records money-movement activity per entry kind.
type LedgerMetrics struct {
	entries    *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	amount     *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexavest",
		Subsystem: "ledger",
		Name:      "entries_total",
		Help:      "Completed ledger entries by kind and direction.",
	}, []string{"kind", "direction"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexavest",
		Subsystem: "ledger",
		Name:      "duplicates_total",
		Help:      "Idempotency-key collisions treated as no-ops, by kind.",
	}, []string{"kind"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexavest",
		Subsystem: "ledger",
		Name:      "amount_total",
		Help:      "Total amount moved through the ledger by kind and direction.",
	}, []string{"kind", "direction"})
	reg.MustRegister(entries, duplicates, amount)
	return &LedgerMetrics{
		entries:    entries,
		duplicates: duplicates,
		amount:     amount,
	}
}

// IncEntry counts one completed entry and its amount.
func (l *LedgerMetrics) IncEntry(kind, direction string, amount float64) {
	if l == nil || l.entries == nil {
		return
	}
	l.entries.WithLabelValues(normalizeLabel(kind), normalizeLabel(direction)).Inc()
	l.amount.WithLabelValues(normalizeLabel(kind), normalizeLabel(direction)).Add(amount)
}

// IncDuplicate counts an idempotency collision for the kind.
func (l *LedgerMetrics) IncDuplicate(kind string) {
	if l == nil || l.duplicates == nil {
		return
	}
	l.duplicates.WithLabelValues(normalizeLabel(kind)).Inc()
}
