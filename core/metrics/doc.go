// Package metrics defines the observability contract of the dispatcher.
// Sinks record deliveries, assignments, inbound message outcomes, order
// transitions and channel state. NewMetricsSink builds one from a list of
// factory module configs and wraps several in a MultiSink.
package metrics
