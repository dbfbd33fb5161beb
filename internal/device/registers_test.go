package device

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newBusTestRegistry(t *testing.T, seenAgo time.Duration) *Registry {
	t.Helper()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(Options{DeviceTimeout: time.Minute})
	r.now = func() time.Time { return now }

	if _, err := r.AddDevice("AA:BB:CC:DD:EE:FF", 1, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if _, err := r.AddDevice("AA:BB:CC:DD:EE:00", 2, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	rssi := -50
	err := r.HandleReport(Report{
		Address:     "AA:BB:CC:DD:EE:FF",
		EventType:   EventScanRsp,
		AddressType: AddressRandom,
		RSSI:        &rssi,
		Data: []DataElement{
			{Type: DataTxPowerLevel, Value: 4},
			{Type: DataManufacturerData, Value: ManufacturerData{CompanyID: 0x004C, Payload: HexBytes{1, 2, 3}}},
		},
		ReceivedAt: now.Add(-seenAgo),
	})
	if err != nil {
		t.Fatalf("HandleReport() error = %v", err)
	}
	return r
}

func TestHandleBusRequest(t *testing.T) {
	r := newBusTestRegistry(t, 10*time.Second)

	got, err := r.HandleBusRequest(1, FuncReadHoldingRegisters, []byte{0, 0, 0, 8})
	if err != nil {
		t.Fatalf("HandleBusRequest() error = %v", err)
	}
	want := []byte{
		16,
		0x00, 0x07, // online, random, scan response
		0xFF, 0xCE, // -50
		0x00, 0x04,
		0x00, 0x0A, // 10s
		0x00, 0x4C,
		0x00, 0x03,
		0x01, 0x02,
		0x03, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("HandleBusRequest() = % X, want % X", got, want)
	}

	// Input registers are the same view.
	input, err := r.HandleBusRequest(1, FuncReadInputRegisters, []byte{0, 0, 0, 8})
	if err != nil || !bytes.Equal(input, want) {
		t.Errorf("input registers = % X, %v", input, err)
	}
}

func TestHandleBusRequest_OfflineAndNeverSeen(t *testing.T) {
	r := newBusTestRegistry(t, 2*time.Minute)

	got, err := r.HandleBusRequest(1, FuncReadHoldingRegisters, []byte{0, RegFlags, 0, 1})
	if err != nil {
		t.Fatalf("HandleBusRequest() error = %v", err)
	}
	if !bytes.Equal(got, []byte{2, 0x00, 0x06}) {
		t.Errorf("flags = % X, want online bit clear", got)
	}

	got, err = r.HandleBusRequest(2, FuncReadHoldingRegisters, []byte{0, RegFlags, 0, RegAge + 1})
	if err != nil {
		t.Fatalf("HandleBusRequest() error = %v", err)
	}
	want := []byte{8, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("never seen = % X, want % X", got, want)
	}
}

func TestHandleBusRequest_Errors(t *testing.T) {
	r := newBusTestRegistry(t, time.Second)

	tests := []struct {
		name     string
		unit     uint8
		function uint8
		data     []byte
		wantErr  error
	}{
		{"unknown unit", 9, FuncReadHoldingRegisters, []byte{0, 0, 0, 1}, ErrUnknownUnit},
		{"write function", 1, 0x06, []byte{0, 0, 0, 1}, ErrIllegalFunction},
		{"short request", 1, FuncReadHoldingRegisters, []byte{0, 0, 1}, ErrIllegalDataValue},
		{"zero quantity", 1, FuncReadHoldingRegisters, []byte{0, 0, 0, 0}, ErrIllegalDataValue},
		{"quantity too large", 1, FuncReadHoldingRegisters, []byte{0, 0, 0, 126}, ErrIllegalDataValue},
		{"past the map", 1, FuncReadHoldingRegisters, []byte{0, RegisterCount - 1, 0, 2}, ErrIllegalDataAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.HandleBusRequest(tt.unit, tt.function, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleBusRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceRegisters_LongPayloadTruncated(t *testing.T) {
	payload := make(HexBytes, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	d := &Device{State: map[string]any{StateManufacturerData: ManufacturerData{Payload: payload}}}

	regs := deviceRegisters(d, time.Now(), 0)
	if regs[RegPayloadLen] != payloadRegisters*2 {
		t.Errorf("payload length = %d, want %d", regs[RegPayloadLen], payloadRegisters*2)
	}
	if last := regs[RegisterCount-1]; last != 0x3E3F {
		t.Errorf("last payload register = %04X, want 3E3F", last)
	}
}
