package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the ledger core reports into.
type Metrics struct {
	// Transactions counts finished units by kind and outcome
	// (persisted, rejected, conflict).
	Transactions *prometheus.CounterVec

	// UnitDuration observes wall time of each atomic unit by kind.
	UnitDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "transactions_total",
			Help:      "Finished ledger transactions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		UnitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backoffice",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of atomic ledger units.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}
