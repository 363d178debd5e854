package rebroadcast

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rebroadcast_attempts_total",
		Help: "Rebroadcast attempts that passed all skip gates.",
	})
	successesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rebroadcast_successes_total",
		Help: "Rebroadcast attempts that reached minSuccessCount.",
	})
	failuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rebroadcast_failures_total",
		Help: "Rebroadcast attempts that did not reach minSuccessCount.",
	})
	skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rebroadcast_skipped_total",
		Help: "Chunks excluded from rebroadcast, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(attemptsTotal, successesTotal, failuresTotal, skippedTotal)
}
