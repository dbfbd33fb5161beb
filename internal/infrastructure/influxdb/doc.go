// Package influxdb writes device telemetry to InfluxDB v2.
//
// Numeric values from device changes (RSSI, TX power, battery) go to the
// device_report measurement, tagged by address and bus unit, at millisecond
// precision. Writes queue without blocking; batch failures are logged and
// counted in fieldgate_writes_total{writer="influxdb"}.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDeviceReport("AA:BB:CC:DD:EE:FF", 3, map[string]any{"rssi": -61}, time.Now())
package influxdb
