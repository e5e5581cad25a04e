package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatwallet"

var (
	messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound messages handled, by outcome.",
	}, []string{"outcome"})

	flowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flows_started_total",
		Help:      "Conversation flows started, by kind.",
	}, []string{"flow"})

	pinAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pin_attempts_total",
		Help:      "PIN verifications, by result.",
	}, []string{"result"})

	chainCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chain_call_seconds",
		Help:      "Latency of wallet SDK submissions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"family", "operation", "result"})

	oracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_calls_total",
		Help:      "Intent oracle calls, by result.",
	}, []string{"result"})

	maintenance = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_items_total",
		Help:      "Sessions swept and transactions reconciled.",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(messages, flowsStarted, pinAttempts, chainCalls, oracleCalls, maintenance)
}

func Message(outcome string) { messages.WithLabelValues(outcome).Inc() }

func FlowStarted(flow string) { flowsStarted.WithLabelValues(flow).Inc() }

func PinAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	pinAttempts.WithLabelValues(result).Inc()
}

// ChainCall observes the time since start.
func ChainCall(family, operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	chainCalls.WithLabelValues(family, operation, result).Observe(time.Since(start).Seconds())
}

func OracleCall(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	oracleCalls.WithLabelValues(result).Inc()
}

func Maintenance(job string, count int) {
	if count > 0 {
		maintenance.WithLabelValues(job).Add(float64(count))
	}
}
