// Package factory instantiates pluggable modules, such as metrics backends
// and event sinks, from configuration. A module is named by a type string
// and carries a map of raw settings that its factory decodes with Decode.
//
//	reg := factory.NewRegistry[events.Sink]()
//	_ = reg.Register("mqtt", func(conf map[string]any) (events.Sink, error) {
//	    var c mqtt.Config
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return dialSink(c)
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "mqtt", Conf: map[string]any{"broker": "tcp://localhost:1883"}})
package factory
