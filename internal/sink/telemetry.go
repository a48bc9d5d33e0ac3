package sink

import (
	"context"
	"time"

	"github.com/nerrad567/signalhub/internal/signal"
)

// MeasurementSignal is the InfluxDB measurement numeric signals are written to.
const MeasurementSignal = "signal"

// PointWriter writes one time-series point. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) error
}

// Telemetry writes numeric signals as InfluxDB points tagged id, source and
// unit, with a single "value" field. String signals are skipped.
type Telemetry struct {
	writer PointWriter
}

// NewTelemetry creates a telemetry handler over w.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{writer: w}
}

// Handle implements Handler.
func (t *Telemetry) Handle(_ context.Context, sig signal.Signal) error {
	f, ok := sig.Value.Float()
	if !ok {
		return ErrSkipped
	}

	tags := map[string]string{
		"id":     sig.ID,
		"source": sig.Source,
	}
	if sig.Unit != "" {
		tags["unit"] = sig.Unit
	}

	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return t.writer.WritePoint(MeasurementSignal, tags, map[string]any{"value": f}, ts)
}
