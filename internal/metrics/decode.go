package metrics

import "github.com/prometheus/client_golang/prometheus"

// Decode Prometheus metrics.
var (
	DocumentsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nqdecode",
			Name:      "documents_decoded_total",
			Help:      "Documents decoded, by outcome",
		},
		[]string{"outcome"}, // "answer" / "no_answer"
	)

	WindowsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nqdecode",
			Name:      "windows_skipped_total",
			Help:      "Feature windows or result records left out of decoding",
		},
		[]string{"reason"},
	)

	DecodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nqdecode",
			Name:      "decode_duration_seconds",
			Help:      "Wall time of one decode run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"source"}, // "batch" / "http"
	)

	ResultStoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nqdecode",
			Name:      "result_store_total",
			Help:      "Raw result store lookups",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EvalF1 = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nqdecode",
			Name:      "eval_f1",
			Help:      "F1 of the last evaluation at the submission threshold",
		},
		[]string{"kind"}, // "long" / "short"
	)
)

var decodeMetricsRegistered bool

// RegisterDecodeMetrics registers Prometheus decode metrics. Must be called once from main.
func RegisterDecodeMetrics() {
	if decodeMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsDecodedTotal)
	prometheus.MustRegister(WindowsSkippedTotal)
	prometheus.MustRegister(DecodeDuration)
	prometheus.MustRegister(ResultStoreTotal)
	prometheus.MustRegister(EvalF1)
	decodeMetricsRegistered = true
}
