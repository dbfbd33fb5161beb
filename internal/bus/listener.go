package bus

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
)

// Listener is a Modbus TCP slave endpoint. Each accepted client is admitted
// through the listener's Guard and served in its own goroutine.
type Listener struct {
	cfg     config.SlaveConfig
	handler Handler
	guard   *Guard
	logger  Logger
	listen  func(network, address string) (net.Listener, error)
	done    chan struct{}

	mu      sync.Mutex
	ln      net.Listener
	clients map[*client]struct{}
	closed  bool

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// NewListener creates a listener for cfg. Call Start to begin accepting.
func NewListener(cfg config.SlaveConfig, handler Handler, logger Logger) *Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		guard:   NewGuard(cfg.ID, cfg.MaxBufferOverflows, cfg.BanDuration, logger),
		logger:  logger,
		listen:  net.Listen,
		done:    make(chan struct{}),
		clients: make(map[*client]struct{}),
	}
}

// Name returns the listener id.
func (l *Listener) Name() string { return l.cfg.ID }

// Guard returns the listener's abuse guard.
func (l *Listener) Guard() *Guard { return l.guard }

// Start opens the socket and starts the accept loop.
func (l *Listener) Start() error {
	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	ln, err := l.listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		ln.Close() //nolint:errcheck // Already closed
		return ErrClosed
	}
	l.ln = ln
	l.mu.Unlock()

	l.logger.Info("bus listener started", "listener", l.cfg.ID, "address", ln.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Clients returns the number of connected clients.
func (l *Listener) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops accepting, disconnects every client, cancels pending unban
// timers and waits for client goroutines. Safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	ln := l.ln
	clients := make([]*client, 0, len(l.clients))
	for c := range l.clients {
		clients = append(clients, c)
	}
	l.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range clients {
		c.Close() //nolint:errcheck // Best-effort disconnect
	}
	l.guard.Close()
	l.wg.Wait()

	l.logger.Info("bus listener closed", "listener", l.cfg.ID)
	return err
}

// Accept failures other than a closed socket are retried with a delay
// doubling from minAcceptDelay up to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func (l *Listener) acceptLoop(ln net.Listener) {
	defer l.wg.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedConn(err) || l.isClosed() {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			l.logger.Error("bus accept failed, retrying", "listener", l.cfg.ID, "error", err, "retry_in", delay)
			select {
			case <-l.done:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		c := &client{
			id:   fmt.Sprintf("%s#%d", l.cfg.ID, l.nextID.Add(1)),
			host: remoteHost(conn),
			conn: conn,
		}

		if !l.guard.Admit(c) {
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			c.Close() //nolint:errcheck // Shutting down
			continue
		}
		l.clients[c] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go l.serveClient(c)
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) serveClient(c *client) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.clients, c)
		l.mu.Unlock()
		c.Close() //nolint:errcheck // Already finished
	}()

	l.logger.Debug("bus client connected", "listener", l.cfg.ID, "client", c.id, "host", c.host)

	s := &session{
		conn:    c.conn,
		handler: l.handler,
		logger:  l.logger,
		onOverflow: func(size int) bool {
			return l.guard.Overflow(c, size)
		},
	}
	if err := s.serve(); err != nil {
		l.logger.Warn("bus client error", "listener", l.cfg.ID, "client", c.id, "error", err)
	}

	l.logger.Debug("bus client disconnected", "listener", l.cfg.ID, "client", c.id)
}

// client is an accepted connection.
type client struct {
	id   string
	host string
	conn net.Conn
	once sync.Once
	err  error
}

func (c *client) ID() string   { return c.id }
func (c *client) Host() string { return c.host }

func (c *client) Close() error {
	c.once.Do(func() { c.err = c.conn.Close() })
	return c.err
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
