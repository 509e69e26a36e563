// Package metrics exposes Prometheus instrumentation for shard operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/types"
)

const (
	OutcomeOK           = "ok"
	OutcomeDuplicateKey = "duplicate_key"
	OutcomeError        = "error"
)

var (
	shardOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharddb",
			Subsystem: "executor",
			Name:      "operations_total",
			Help:      "Total number of operations executed against shards.",
		},
		[]string{"shard", "operation", "outcome"})
	shardOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sharddb",
			Subsystem: "executor",
			Name:      "operation_duration_seconds",
			Help:      "Amount of time spent per operation on a shard, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"shard", "operation"})
	fanOutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sharddb",
			Subsystem: "fanout",
			Name:      "requests_total",
			Help:      "Total number of fan-out requests, by how many shards failed.",
		},
		[]string{"operation", "result"})
)

func init() {
	prometheus.MustRegister(shardOperationsTotal)
	prometheus.MustRegister(shardOperationDurationSeconds)
	prometheus.MustRegister(fanOutsTotal)
}

// Outcome classifies an operation error for labelling.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, dberrors.ErrDuplicateKey):
		return OutcomeDuplicateKey
	default:
		return OutcomeError
	}
}

// ObserveOperation records one shard operation.
func ObserveOperation(shard types.ShardID, operation string, err error, took time.Duration) {
	shardOperationsTotal.WithLabelValues(string(shard), operation, Outcome(err)).Inc()
	shardOperationDurationSeconds.WithLabelValues(string(shard), operation).Observe(took.Seconds())
}

// ObserveFanOut records a fan-out that touched total shards, failed of which
// failed.
func ObserveFanOut(operation string, total, failed int) {
	result := "complete"
	switch {
	case failed == 0:
	case failed == total:
		result = "failed"
	default:
		result = "partial"
	}
	fanOutsTotal.WithLabelValues(operation, result).Inc()
}
