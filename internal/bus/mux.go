package bus

import (
	"errors"
	"fmt"
	"sync"
)

// component is anything the Mux starts and closes.
type component interface {
	Name() string
	Start() error
	Close() error
}

// Mux owns every bus link and listener of the gateway.
type Mux struct {
	logger Logger

	mu         sync.Mutex
	components []component
	links      []*Link
	listeners  []*Listener
	closed     bool
}

// NewMux creates an empty multiplexer.
func NewMux(logger Logger) *Mux {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Mux{logger: logger}
}

// AddLink starts l and takes ownership of it.
func (m *Mux) AddLink(l *Link) error {
	if err := m.add(l); err != nil {
		return err
	}
	m.mu.Lock()
	m.links = append(m.links, l)
	m.mu.Unlock()
	return nil
}

// AddListener starts l and takes ownership of it.
func (m *Mux) AddListener(l *Listener) error {
	if err := m.add(l); err != nil {
		return err
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
	return nil
}

// Links returns the registered links.
func (m *Mux) Links() []*Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Link(nil), m.links...)
}

// Listeners returns the registered listeners.
func (m *Mux) Listeners() []*Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Listener(nil), m.listeners...)
}

// Close closes every component exactly once, in registration order.
func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	components := m.components
	m.mu.Unlock()

	var errs []error
	for _, c := range components {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mux) add(c component) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	if err := c.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		c.Close() //nolint:errcheck // Closed while starting
		return ErrClosed
	}
	m.components = append(m.components, c)
	m.logger.Debug("bus component added", "name", c.Name())
	return nil
}
