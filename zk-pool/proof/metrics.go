package proof

import "github.com/prometheus/client_golang/prometheus"

var (
	verifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zkpool",
		Subsystem: "proof",
		Name:      "verify_seconds",
		Help:      "Duration of spend proof verifications in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	verifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkpool",
			Subsystem: "proof",
			Name:      "verify_total",
			Help:      "Total number of spend proof verifications by result",
		},
		[]string{"result"}, // valid, invalid
	)

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zkpool",
		Subsystem: "proof",
		Name:      "cache_hits_total",
		Help:      "Total number of spend proofs accepted from the verification cache",
	})
)

func init() {
	prometheus.MustRegister(verifyDuration, verifyTotal, cacheHits)
}
