package device

// EventKind names a registry lifecycle event.
type EventKind string

// Registry lifecycle events.
const (
	EventAdd    EventKind = "device:add"
	EventRemove EventKind = "device:remove"
	EventChange EventKind = "device:change"
)

// Event is delivered to registry subscribers.
//
// Device is a snapshot taken right after the mutation. Changes is set for
// EventChange only and holds the state fields the report changed plus
// last_seen.
type Event struct {
	Kind    EventKind
	Device  Device
	Changes map[string]any
}

// Handler receives registry events. Handlers run in emission order, one
// event at a time, and may call any Registry method.
type Handler func(Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Subscribe registers fn for all future events and returns a function that
// removes it. The returned function is safe to call more than once.
func (r *Registry) Subscribe(fn Handler) (cancel func()) {
	r.subsMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// emit queues ev for delivery. Callers hold writeMu so queue order matches
// mutation order.
func (r *Registry) emit(ev Event) {
	r.queueMu.Lock()
	r.pending = append(r.pending, ev)
	r.queueMu.Unlock()
}

// dispatch delivers queued events. Only one goroutine delivers at a time;
// a call made while another delivery is running returns at once and its
// events are picked up by the running loop.
func (r *Registry) dispatch() {
	r.queueMu.Lock()
	if r.dispatching {
		r.queueMu.Unlock()
		return
	}
	r.dispatching = true

	done := false
	defer func() {
		// A panicking subscriber must not leave the queue stuck.
		if !done {
			r.queueMu.Lock()
			r.dispatching = false
			r.queueMu.Unlock()
		}
	}()

	for len(r.pending) > 0 {
		ev := r.pending[0]
		r.pending[0] = Event{}
		r.pending = r.pending[1:]
		r.queueMu.Unlock()
		r.deliver(ev)
		r.queueMu.Lock()
	}
	r.dispatching = false
	done = true
	r.queueMu.Unlock()
}

func (r *Registry) deliver(ev Event) {
	r.subsMu.Lock()
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
