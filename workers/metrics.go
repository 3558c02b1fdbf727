package workers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	verifications    *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	registryRecords  *prometheus.CounterVec
	reconciledHashes *prometheus.CounterVec
	pendingHashes    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ckbridge_verifications_total",
		Help: "Receipt verifications by caller-facing or background source and result",
	}, []string{"source", "result"})

	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ckbridge_withdrawals_total",
		Help: "Orchestrated withdrawals by asset and final status",
	}, []string{"asset", "result"})

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ckbridge_registry_records_total",
		Help: "Claimed hashes recorded per asset",
	}, []string{"asset"})

	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ckbridge_reconciled_total",
		Help: "Background re-verifications of claimed hashes",
	}, []string{"asset", "result"})

	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ckbridge_unsettled_hashes",
		Help: "Claimed hashes without a final verification outcome",
	}, []string{"asset"})

	r := prometheus.NewRegistry()
	r.MustRegister(verifications, withdrawals, records, reconciled, pending)

	return &Metrics{
		registry:         r,
		verifications:    verifications,
		withdrawals:      withdrawals,
		registryRecords:  records,
		reconciledHashes: reconciled,
		pendingHashes:    pending,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Verification sources.
const (
	SourceAPI       = "api"
	SourceReconcile = "reconcile"
)

// VerificationObserver counts outcomes under the given source, so background
// rounds do not inflate the caller-facing series.
func (m *Metrics) VerificationObserver(source string) func(result string) {
	return func(result string) {
		m.verifications.WithLabelValues(source, result).Inc()
	}
}

func (m *Metrics) IncWithdrawal(asset, result string) {
	m.withdrawals.WithLabelValues(asset, result).Inc()
}

func (m *Metrics) IncRecord(asset string) {
	m.registryRecords.WithLabelValues(asset).Inc()
}

func (m *Metrics) IncReconciled(asset, result string) {
	m.reconciledHashes.WithLabelValues(asset, result).Inc()
}

func (m *Metrics) SetUnsettled(asset string, n int) {
	m.pendingHashes.WithLabelValues(asset).Set(float64(n))
}
