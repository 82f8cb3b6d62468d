// Package telemetry records accepted sensor readings to a time-series store.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Measurement is the point name for soil readings.
const Measurement = "soil"

// Reading is one accepted sensor sample.
type Reading struct {
	Time    time.Time
	Raw     int
	Percent int
	Level   logic.WaterLevel
}

// Recorder stores readings. Implementations must not block for long and
// must not fail the caller: errors are their own concern.
type Recorder interface {
	Record(r Reading)
	Close()
}

// Nop discards readings.
type Nop struct{}

func (Nop) Record(Reading) {}
func (Nop) Close()         {}

// InfluxConfig selects the InfluxDB v2 target.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether enough is configured to write.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

// InfluxRecorder writes readings through the client's batching write API.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	log    *zap.Logger
}

// NewInfluxRecorder connects to InfluxDB and checks its health.
func NewInfluxRecorder(ctx context.Context, conf InfluxConfig, log *zap.Logger) (*InfluxRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := influxdb2.NewClientWithOptions(conf.URL, conf.Token,
		influxdb2.DefaultOptions().
			SetUseGZip(true).
			SetBatchSize(20).
			SetFlushInterval(uint(time.Minute/time.Millisecond)))

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb health check %s: %w", conf.URL, err)
	}

	r := &InfluxRecorder{
		client: client,
		write:  client.WriteAPI(conf.Org, conf.Bucket),
		log:    log,
	}
	go r.drainErrors()
	return r, nil
}

// drainErrors ends when the client closes the write API.
func (r *InfluxRecorder) drainErrors() {
	for err := range r.write.Errors() {
		r.log.Warn("influx write failed", zap.Error(err))
	}
}

// Record queues one point.
func (r *InfluxRecorder) Record(rd Reading) {
	r.write.WritePoint(Point(rd))
}

// Close flushes pending points and releases the client.
func (r *InfluxRecorder) Close() {
	r.write.Flush()
	r.client.Close()
}

// Point converts a reading to an InfluxDB point.
func Point(rd Reading) *write.Point {
	return influxdb2.NewPoint(Measurement,
		map[string]string{"water_level": string(rd.Level)},
		map[string]interface{}{"raw": rd.Raw, "percent": rd.Percent},
		rd.Time)
}
