package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. The write is non-blocking; it is batched
// and sent asynchronously.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Indexed key-value pairs (keep cardinality low)
//   - fields: The data values
//   - timestamp: The time of the observation
//
// Returns:
//   - error: ErrNotConnected after Close; nil otherwise
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	return nil
}
