package sinks

import (
	"testing"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
)

type writtenReport struct {
	address string
	unit    int
	fields  map[string]any
	ts      time.Time
}

type fakeWriter struct {
	writes []writtenReport
}

func (f *fakeWriter) WriteDeviceReport(address string, unit int, fields map[string]any, ts time.Time) {
	f.writes = append(f.writes, writtenReport{address: address, unit: unit, fields: fields, ts: ts})
}

func TestTelemetry_HandleEvent(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		event      device.Event
		wantWrites int
		wantFields map[string]any
		wantTS     time.Time
	}{
		{
			name: "change writes changed fields at last seen",
			event: device.Event{
				Kind:    device.EventChange,
				Device:  device.Device{Address: "AA:BB:CC:DD:EE:01", Unit: 3, LastSeen: &seen},
				Changes: map[string]any{device.StateRSSI: -70, device.StateTxPower: 4, device.StateLastSeen: seen},
			},
			wantWrites: 1,
			wantFields: map[string]any{device.StateRSSI: -70, device.StateTxPower: 4},
			wantTS:     seen,
		},
		{
			name: "never seen device uses now",
			event: device.Event{
				Kind:    device.EventChange,
				Device:  device.Device{Address: "AA:BB:CC:DD:EE:02", Unit: 4},
				Changes: map[string]any{device.StateRSSI: -50},
			},
			wantWrites: 1,
			wantFields: map[string]any{device.StateRSSI: -50},
			wantTS:     now,
		},
		{
			name: "only last seen changed",
			event: device.Event{
				Kind:    device.EventChange,
				Device:  device.Device{Address: "AA:BB:CC:DD:EE:01", Unit: 3, LastSeen: &seen},
				Changes: map[string]any{device.StateLastSeen: seen},
			},
		},
		{
			name:  "add ignored",
			event: device.Event{Kind: device.EventAdd, Device: device.Device{Address: "AA:BB:CC:DD:EE:01", Unit: 3}},
		},
		{
			name:  "remove ignored",
			event: device.Event{Kind: device.EventRemove, Device: device.Device{Address: "AA:BB:CC:DD:EE:01", Unit: 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			tel := NewTelemetry(w)
			tel.now = func() time.Time { return now }

			tel.HandleEvent(tt.event)

			if len(w.writes) != tt.wantWrites {
				t.Fatalf("writes = %d, want %d", len(w.writes), tt.wantWrites)
			}
			if tt.wantWrites == 0 {
				return
			}
			got := w.writes[0]
			if got.address != tt.event.Device.Address || got.unit != tt.event.Device.Unit {
				t.Errorf("tags = %s/%d", got.address, got.unit)
			}
			if !got.ts.Equal(tt.wantTS) {
				t.Errorf("ts = %v, want %v", got.ts, tt.wantTS)
			}
			if len(got.fields) != len(tt.wantFields) {
				t.Fatalf("fields = %v, want %v", got.fields, tt.wantFields)
			}
			for k, v := range tt.wantFields {
				if got.fields[k] != v {
					t.Errorf("field %s = %v, want %v", k, got.fields[k], v)
				}
			}
		})
	}
}

func TestTelemetry_ReceivesRegistryChanges(t *testing.T) {
	w := &fakeWriter{}
	reg := device.NewRegistry(device.Options{AutoDiscovery: true})
	cancel := reg.Subscribe(NewTelemetry(w).HandleEvent)
	defer cancel()

	rssi := -42
	if err := reg.HandleReport(device.Report{Address: "aa:bb:cc:dd:ee:ff", RSSI: &rssi}); err != nil {
		t.Fatalf("HandleReport: %v", err)
	}

	if len(w.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(w.writes))
	}
	if w.writes[0].unit != 1 || w.writes[0].fields[device.StateRSSI] != -42 {
		t.Errorf("write = %+v", w.writes[0])
	}
}
