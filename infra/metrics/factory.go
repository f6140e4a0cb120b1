package metrics

import (
	"github.com/kilianp07/kurir/core/factory"
	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})
	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// The port belongs to the HTTP server; the sink only registers collectors.
		s, err := NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}

// FromConfig builds the sink described by cfg: the explicit sink list when
// set, otherwise the prometheus and influx toggles.
func FromConfig(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	sinks := cfg.Sinks
	if len(sinks) == 0 {
		if cfg.PrometheusEnabled {
			sinks = append(sinks, factory.ModuleConfig{Type: "prometheus"})
		}
		if cfg.InfluxEnabled {
			sinks = append(sinks, factory.ModuleConfig{Type: "influx", Conf: map[string]any{
				"url":    cfg.InfluxURL,
				"token":  cfg.InfluxToken,
				"org":    cfg.InfluxOrg,
				"bucket": cfg.InfluxBucket,
			}})
		}
	}
	return coremetrics.NewMetricsSink(sinks)
}
