package metrics

import (
	"fmt"

	"github.com/kilianp07/kurir/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink makes a metrics backend available under name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkNames lists the registered metrics backends.
func SinkNames() []string { return sinkRegistry.Names() }

// NewMetricsSink builds the configured backends. Nothing configured yields a
// NopSink and several are fanned out through a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		s, err := sinkRegistry.Create(cfgs[0])
		if err != nil {
			return nil, fmt.Errorf("metrics sink %s: %w", cfgs[0].Type, err)
		}
		return s, nil
	}
	sinks, err := sinkRegistry.CreateAll(cfgs)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	return NewMultiSink(sinks...), nil
}
