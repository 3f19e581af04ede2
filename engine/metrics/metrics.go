// Package metrics holds the prometheus collectors of the replication layer.
//
// Label values are bounded: message type names, operation names and error kinds only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntityCount is the number of registered entities of all sessions in this process
	EntityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replica_entities",
		Help: "Current number of registered entities",
	})

	// PeerCount is the number of connected peers of all sessions in this process
	PeerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "replica_peers",
		Help: "Current number of connected peers",
	})

	// MessagesSent counts sent messages by type
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replica_messages_sent_total",
		Help: "Messages sent by type",
	}, []string{"type"})

	// MessagesReceived counts received messages by type
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replica_messages_received_total",
		Help: "Messages received by type",
	}, []string{"type"})

	// Errors counts replication errors by kind: transport, protocol, integrity
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replica_errors_total",
		Help: "Replication errors by kind",
	}, []string{"kind"})

	// InterestChanges counts CREATE and FORGET decisions of the interest sweep
	InterestChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replica_interest_changes_total",
		Help: "Interest set changes by direction",
	}, []string{"change"}) // enter, leave

	// OperationDuration records durations of monitored operations such as ticks and saves
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replica_operation_duration_seconds",
		Help:    "Duration of monitored operations",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
	}, []string{"op"})
)
