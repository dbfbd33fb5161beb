package ingest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/mqtt"
)

type fakeSubscriber struct {
	handlers map[string]mqtt.ScanHandler
	subErr   error
}

func (f *fakeSubscriber) SubscribeScans(topic string, handler mqtt.ScanHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	if f.handlers == nil {
		f.handlers = map[string]mqtt.ScanHandler{}
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	delete(f.handlers, topic)
	return nil
}

// recordingHandler records reports and optionally fails them.
type recordingHandler struct {
	mu      sync.Mutex
	reports []device.Report
	err     error
}

func (h *recordingHandler) HandleReport(r device.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.reports = append(h.reports, r)
	return nil
}

func TestScanner_HandleMessage(t *testing.T) {
	sub := &fakeSubscriber{}
	handler := &recordingHandler{}
	s := NewScanner(sub, "", nil, handler, nil)
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h, ok := sub.handlers["fieldgate/scan/+"]
	if !ok {
		t.Fatalf("subscribed topics = %v", sub.handlers)
	}

	payload := []byte(`{"address":"aa:bb:cc:dd:ee:ff","addressType":"public","localName":"node","rssi":-55,"manufacturerData":"90820102"}`)
	if err := h("hall", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(handler.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(handler.reports))
	}
	r := handler.reports[0]
	if r.Address != "AA:BB:CC:DD:EE:FF" || *r.RSSI != -55 || !r.ReceivedAt.Equal(fixed) {
		t.Errorf("report = %+v", r)
	}
	md, ok := r.Data[1].Value.(device.ManufacturerData)
	if !ok || md.CompanyID != 0x8290 {
		t.Errorf("manufacturer data = %+v", r.Data[1].Value)
	}

	if err := s.Stop(); err != nil || len(sub.handlers) != 0 {
		t.Errorf("Stop() error = %v, handlers = %v", err, sub.handlers)
	}
}

func TestScanner_HandleMessageErrors(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		handlerErr error
		wantErr    error
		wantCalls  int
	}{
		{name: "bad json", payload: `{`, wantErr: ErrInvalidScanEvent},
		{name: "empty data dropped", payload: `{"address":"aa:bb:cc:dd:ee:ff","rssi":-1}`},
		{
			name:       "admission failure is not an error",
			payload:    `{"address":"aa:bb:cc:dd:ee:ff","txPowerLevel":1}`,
			handlerErr: fmt.Errorf("%w: %w", device.ErrAdmissionFailed, device.ErrNoFreeUnit),
		},
		{
			name:       "other registry errors surface",
			payload:    `{"address":"aa:bb:cc:dd:ee:ff","txPowerLevel":1}`,
			handlerErr: errors.New("boom"),
			wantErr:    errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(&fakeSubscriber{}, "fieldgate/scan/+", nil, &recordingHandler{err: tt.handlerErr}, nil)
			err := s.HandleMessage("x", []byte(tt.payload))

			switch {
			case tt.wantErr == nil && err != nil:
				t.Errorf("HandleMessage() error = %v, want nil", err)
			case tt.wantErr != nil && err == nil:
				t.Errorf("HandleMessage() error = nil, want %v", tt.wantErr)
			case tt.wantErr == ErrInvalidScanEvent && !errors.Is(err, ErrInvalidScanEvent):
				t.Errorf("HandleMessage() error = %v, want ErrInvalidScanEvent", err)
			}
		})
	}
}

func TestScanner_StartError(t *testing.T) {
	s := NewScanner(&fakeSubscriber{subErr: mqtt.ErrNotConnected}, "", nil, &recordingHandler{}, nil)
	if err := s.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}
