package sinks

import (
	"encoding/json"
	"sync"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/mqtt"
)

// relayQueueSize bounds the publications waiting for the broker.
const relayQueueSize = 256

// Publisher sets retained MQTT values; *mqtt.Client implements it.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

type publication struct {
	address string
	topic   string
	payload []byte
}

// MQTTRelay mirrors device state to retained MQTT topics.
//
// HandleEvent only queues; a single worker publishes in event order so a
// slow broker never holds up the registry. When the queue is full the
// publication is dropped and logged.
type MQTTRelay struct {
	pub    Publisher
	logger Logger
	topics mqtt.Topics

	mu      sync.Mutex
	queue   chan publication
	started bool
	closed  bool
	done    chan struct{}
}

// NewMQTTRelay creates a relay publishing through pub.
func NewMQTTRelay(pub Publisher, logger Logger) *MQTTRelay {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTRelay{
		pub:    pub,
		logger: logger,
		queue:  make(chan publication, relayQueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the publishing worker.
func (r *MQTTRelay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.started {
		return nil
	}
	r.started = true
	go r.run()
	return nil
}

// HandleEvent queues the retained state publication for ev. Removal
// publishes an empty retained payload, which clears the topic.
func (r *MQTTRelay) HandleEvent(ev device.Event) {
	p := publication{
		address: ev.Device.Address,
		topic:   r.topics.DeviceState(ev.Device.Address),
	}
	if ev.Kind != device.EventRemove {
		payload, err := json.Marshal(ev.Device)
		if err != nil {
			r.logger.Error("encoding device state failed", "address", p.address, "error", err)
			return
		}
		p.payload = payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- p:
	default:
		r.logger.Warn("device state relay queue full, dropping", "address", p.address, "event", string(ev.Kind))
	}
}

// Close stops accepting events and waits for queued publications to be
// sent.
func (r *MQTTRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if started {
		<-r.done
	}
	return nil
}

func (r *MQTTRelay) run() {
	defer close(r.done)
	for p := range r.queue {
		if err := r.pub.PublishRetained(p.topic, p.payload); err != nil {
			r.logger.Warn("publishing device state failed", "address", p.address, "topic", p.topic, "error", err)
			continue
		}
		r.logger.Debug("device state published", "address", p.address, "topic", p.topic)
	}
}
