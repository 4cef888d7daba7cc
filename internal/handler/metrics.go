package handler

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "residency_attempts_submitted_total",
		Help: "Evaluation attempts submitted, by module and resulting status.",
	}, []string{"module", "status"})

	attemptsAcknowledged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "residency_attempts_acknowledged_total",
		Help: "Evaluation attempts acknowledged by interns, by module.",
	}, []string{"module"})
)

func init() {
	prometheus.MustRegister(attemptsSubmitted, attemptsAcknowledged)
}
