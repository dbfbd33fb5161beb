package sinks

import (
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
)

// ReportWriter stores report fields as time series; *influxdb.Client
// implements it.
type ReportWriter interface {
	WriteDeviceReport(address string, unit int, fields map[string]any, ts time.Time)
}

// Telemetry writes the fields of every device change to a ReportWriter.
// The writer is expected not to block.
type Telemetry struct {
	w   ReportWriter
	now func() time.Time
}

// NewTelemetry creates a telemetry sink.
func NewTelemetry(w ReportWriter) *Telemetry {
	return &Telemetry{w: w, now: time.Now}
}

// HandleEvent writes the changed fields of a device:change event at the
// device's last-seen time. Other events are ignored.
func (t *Telemetry) HandleEvent(ev device.Event) {
	if ev.Kind != device.EventChange {
		return
	}

	fields := make(map[string]any, len(ev.Changes))
	for k, v := range ev.Changes {
		if k == device.StateLastSeen {
			continue
		}
		fields[k] = v
	}
	if len(fields) == 0 {
		return
	}

	ts := t.now()
	if ev.Device.LastSeen != nil {
		ts = *ev.Device.LastSeen
	}
	t.w.WriteDeviceReport(ev.Device.Address, ev.Device.Unit, fields, ts)
}
