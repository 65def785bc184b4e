package observability

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tokenlending/crypto"
	"tokenlending/native/lending"
)

// LendingMetricsRecorder publishes lending engine activity. It implements
// lending.Recorder.
type LendingMetricsRecorder struct {
	operations  *prometheus.CounterVec
	utilization *prometheus.GaugeVec
	available   *prometheus.GaugeVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetricsRecorder
)

// LendingMetrics returns the lazily-initialised lending metrics registered on
// the default Prometheus registry.
func LendingMetrics() *LendingMetricsRecorder {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = NewLendingMetrics(prometheus.DefaultRegisterer)
	})
	return lendingRegistry
}

// NewLendingMetrics builds a recorder whose collectors are registered on reg.
func NewLendingMetrics(reg prometheus.Registerer) *LendingMetricsRecorder {
	m := &LendingMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokenlending",
			Subsystem: "lending",
			Name:      "operations_total",
			Help:      "Lending engine operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tokenlending",
			Subsystem: "lending",
			Name:      "reserve_utilization",
			Help:      "Borrowed share of total reserve liquidity.",
		}, []string{"reserve"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tokenlending",
			Subsystem: "lending",
			Name:      "reserve_available_liquidity",
			Help:      "Liquidity held by the reserve supply account, in base units.",
		}, []string{"reserve"}),
	}
	reg.MustRegister(m.operations, m.utilization, m.available)
	return m
}

// RecordOperation counts an engine operation. Failures are labelled with a
// stable outcome derived from the error.
func (m *LendingMetricsRecorder) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordReserve updates the per-reserve gauges.
func (m *LendingMetricsRecorder) RecordReserve(reserve crypto.Pubkey, utilization float64, available uint64) {
	if m == nil {
		return
	}
	label := reserve.String()
	m.utilization.WithLabelValues(label).Set(utilization)
	m.available.WithLabelValues(label).Set(float64(available))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, lending.ErrModulePaused):
		return "paused"
	case errors.Is(err, lending.ErrReserveStale), errors.Is(err, lending.ErrObligationStale):
		return "stale"
	case errors.Is(err, lending.ErrInvalidAccountData), errors.Is(err, lending.ErrUninitializedAccount):
		return "rejected"
	}
	if _, ok := lending.ErrorCode(err); ok {
		return "rejected"
	}
	return "error"
}
