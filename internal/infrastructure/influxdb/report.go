package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const measurementDeviceReport = "device_report"

// WriteDeviceReport queues the numeric fields of a device report, tagged
// by address and bus unit. Other fields are dropped and a report with no
// numeric field writes nothing. It never blocks on the network.
func (c *Client) WriteDeviceReport(address string, unit int, fields map[string]any, ts time.Time) {
	if c.writeAPI == nil || c.closed.Load() {
		return
	}
	if point := deviceReportPoint(address, unit, fields, ts); point != nil {
		c.writeAPI.WritePoint(point)
	}
}

func deviceReportPoint(address string, unit int, fields map[string]any, ts time.Time) *write.Point {
	numeric := make(map[string]any, len(fields))
	for k, v := range fields {
		if n, ok := numericField(v); ok {
			numeric[k] = n
		}
	}
	if len(numeric) == 0 {
		return nil
	}

	tags := map[string]string{
		"address": address,
		"unit":    strconv.Itoa(unit),
	}
	return write.NewPoint(measurementDeviceReport, tags, numeric, ts)
}

// numericField widens report values to the two field types the bucket
// stores: integers and floats.
func numericField(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return nil, false
}
