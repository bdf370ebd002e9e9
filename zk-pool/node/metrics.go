package node

import "github.com/prometheus/client_golang/prometheus"

var txTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "zkpool",
		Subsystem: "node",
		Name:      "transactions_total",
		Help:      "Total number of delivered transactions by result code",
	},
	[]string{"code"},
)

func init() {
	prometheus.MustRegister(txTotal)
}
