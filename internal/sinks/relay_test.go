package sinks

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
)

type published struct {
	topic   string
	payload []byte
}

// fakePublisher records publications; block, when set, holds every
// PublishRetained until it is closed.
type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	block chan struct{}
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: payload})
	return f.err
}

func (f *fakePublisher) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func testDevice(unit int) device.Device {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return device.Device{
		Address:  "AA:BB:CC:DD:EE:0" + string(rune('0'+unit)),
		Unit:     unit,
		LastSeen: &seen,
		State:    map[string]any{device.StateRSSI: -60},
	}
}

func TestMQTTRelay_PublishesRetainedState(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewMQTTRelay(pub, nil)
	if err := relay.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	relay.HandleEvent(device.Event{Kind: device.EventAdd, Device: testDevice(1)})
	relay.HandleEvent(device.Event{Kind: device.EventChange, Device: testDevice(2), Changes: map[string]any{device.StateRSSI: -60}})
	relay.HandleEvent(device.Event{Kind: device.EventRemove, Device: testDevice(1)})

	if err := relay.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	msgs := pub.published()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3", len(msgs))
	}

	wantTopics := []string{
		"fieldgate/device/AABBCCDDEE01/state",
		"fieldgate/device/AABBCCDDEE02/state",
		"fieldgate/device/AABBCCDDEE01/state",
	}
	for i, m := range msgs {
		if m.topic != wantTopics[i] {
			t.Errorf("msg %d topic = %q, want %q", i, m.topic, wantTopics[i])
		}
	}

	var d device.Device
	if err := json.Unmarshal(msgs[1].payload, &d); err != nil {
		t.Fatalf("decoding state payload: %v", err)
	}
	if d.Unit != 2 || d.State[device.StateRSSI] != float64(-60) {
		t.Errorf("state payload = %s", msgs[1].payload)
	}

	if len(msgs[2].payload) != 0 {
		t.Errorf("remove payload = %q, want empty to clear the retained state", msgs[2].payload)
	}
}

func TestMQTTRelay_PublishErrorContinues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	relay := NewMQTTRelay(pub, nil)
	if err := relay.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	relay.HandleEvent(device.Event{Kind: device.EventAdd, Device: testDevice(1)})
	relay.HandleEvent(device.Event{Kind: device.EventAdd, Device: testDevice(2)})
	relay.Close() //nolint:errcheck // Close never fails

	if n := len(pub.published()); n != 2 {
		t.Errorf("publish attempts = %d, want 2", n)
	}
}

func TestMQTTRelay_HandleEventNeverBlocks(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	relay := NewMQTTRelay(pub, nil)
	if err := relay.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < relayQueueSize+10; i++ {
			relay.HandleEvent(device.Event{Kind: device.EventAdd, Device: testDevice(1)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleEvent blocked behind a stalled broker")
	}

	close(pub.block)
	relay.Close() //nolint:errcheck // Close never fails

	if n := len(pub.published()); n > relayQueueSize+1 {
		t.Errorf("published %d, want at most %d (queue plus one in flight)", n, relayQueueSize+1)
	}
}

func TestMQTTRelay_Lifecycle(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewMQTTRelay(pub, nil)

	// Close before Start must not wait for a worker that never ran.
	if err := relay.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := relay.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := relay.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}

	relay.HandleEvent(device.Event{Kind: device.EventAdd, Device: testDevice(1)})
	if n := len(pub.published()); n != 0 {
		t.Errorf("published %d after Close, want 0", n)
	}
}
