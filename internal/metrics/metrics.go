package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	jobEscrow = "job_escrow"

	operationsTotal = "operations_total"
	jobsByStatus    = "jobs"
	escrowedAmount  = "escrowed_amount"
	eventsRelayed   = "events_relayed_total"

	// Labels
	operationLabel = "operation"
	resultLabel    = "result"
	statusLabel    = "status"
)

var operationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: jobEscrow,
		Name:      operationsTotal,
		Help:      "number of ledger operations by outcome",
	},
	[]string{operationLabel, resultLabel},
)

var jobsByStatusMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: jobEscrow,
		Name:      jobsByStatus,
		Help:      "number of jobs in each status",
	},
	[]string{statusLabel},
)

var escrowedAmountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: jobEscrow,
		Name:      escrowedAmount,
		Help:      "total amount currently held in escrow, in smallest currency units",
	},
)

var eventsRelayedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: jobEscrow,
		Name:      eventsRelayed,
		Help:      "number of ledger events delivered by the relay worker",
	},
	[]string{resultLabel},
)

// ObserveOperation records the outcome of a ledger operation. result is "ok"
// or the error class.
func ObserveOperation(operation, result string) {
	operationsTotalMetric.With(prometheus.Labels{
		operationLabel: operation,
		resultLabel:    result,
	}).Inc()
}

func MoveJob(from, to string) {
	if from != "" {
		jobsByStatusMetric.With(prometheus.Labels{statusLabel: from}).Dec()
	}
	jobsByStatusMetric.With(prometheus.Labels{statusLabel: to}).Inc()
}

func SetJobs(status string, count int) {
	jobsByStatusMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func AddEscrowed(amount uint64) {
	escrowedAmountMetric.Add(float64(amount))
}

func SubEscrowed(amount uint64) {
	escrowedAmountMetric.Sub(float64(amount))
}

func SetEscrowed(amount uint64) {
	escrowedAmountMetric.Set(float64(amount))
}

func IncreaseEventsRelayed(result string) {
	eventsRelayedMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(operationsTotalMetric)
	prometheus.MustRegister(jobsByStatusMetric)
	prometheus.MustRegister(escrowedAmountMetric)
	prometheus.MustRegister(eventsRelayedMetric)
}
