package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/infra/logger"
)

// InfluxSink writes engine events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDelivery writes one send attempt.
func (s *InfluxSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	p := write.NewPointWithMeasurement("delivery").
		AddTag("channel_id", ev.ChannelID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("wait_ms", ev.Wait.Milliseconds())
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordAssignment writes a driver assignment.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("assignment").
		AddTag("source", ev.Source).
		AddTag("driver_id", ev.DriverID).
		AddField("order_number", ev.OrderNumber).
		AddField("success", ev.Success).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordInbound writes an inbound message outcome.
func (s *InfluxSink) RecordInbound(ev coremetrics.InboundEvent) error {
	p := write.NewPointWithMeasurement("inbound").
		AddTag("channel_id", ev.ChannelID).
		AddTag("outcome", ev.Outcome).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordOrderStatus writes an order transition.
func (s *InfluxSink) RecordOrderStatus(ev coremetrics.OrderStatusEvent) error {
	p := write.NewPointWithMeasurement("order_status").
		AddTag("status", ev.Status).
		AddField("order_number", ev.OrderNumber).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordChannelState writes a channel transition.
func (s *InfluxSink) RecordChannelState(ev coremetrics.ChannelStateEvent) error {
	p := write.NewPointWithMeasurement("channel_state").
		AddTag("channel_id", ev.ChannelID).
		AddField("state", ev.State).
		AddField("primary", ev.Primary).
		SetTime(ev.Time)
	return s.write(p)
}
