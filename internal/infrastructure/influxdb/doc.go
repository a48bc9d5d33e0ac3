// Package influxdb provides InfluxDB connectivity for signalhub.
//
// It wraps the official influxdb-client-go v2 library with connection
// verification, non-blocking batched writes and health monitoring. The
// telemetry sink uses it to record numeric signal values as time series.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePoint("signal",
//	    map[string]string{"id": "oh:Kitchen_Temp", "source": "openhab"},
//	    map[string]any{"value": 21.5},
//	    time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the callback
// set with SetOnError. Connection and health check errors are returned
// directly.
package influxdb
