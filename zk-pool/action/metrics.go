package action

import (
	"github.com/kysee/zkpool/zk-pool/poolerr"
	"github.com/prometheus/client_golang/prometheus"
)

var actionChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "zkpool",
		Subsystem: "action",
		Name:      "checks_total",
		Help:      "Total number of action phase runs by kind, phase and result",
	},
	[]string{"kind", "phase", "result"},
)

func init() {
	prometheus.MustRegister(actionChecks)
}

func observe(kind Kind, phase Phase, err error) {
	actionChecks.WithLabelValues(kind.String(), string(phase), poolerr.Code(err)).Inc()
}
