package bus

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// Link reconnect timing.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute
)

// Link is an outbound connection to a bus master. Requests arriving on it
// are answered by the Handler. When the connection drops it is redialled
// with exponential backoff until Close.
type Link struct {
	cfg     config.LinkConfig
	handler Handler
	logger  Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	started   atomic.Bool

	connMu    sync.Mutex
	conn      net.Conn
	connected atomic.Bool

	reconnects atomic.Uint64
}

// NewLink creates a link for cfg. Call Start to begin dialling.
func NewLink(cfg config.LinkConfig, handler Handler, logger Logger) *Link {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Link{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Name returns the link id.
func (l *Link) Name() string { return l.cfg.ID }

// Start launches the connection loop. It does not wait for the first dial.
func (l *Link) Start() error {
	if l.isClosed() {
		return ErrClosed
	}
	if !l.started.CompareAndSwap(false, true) {
		return nil
	}
	l.wg.Add(1)
	go l.run()
	return nil
}

// IsConnected reports whether the link currently has a connection.
func (l *Link) IsConnected() bool {
	return l.connected.Load()
}

// Reconnects returns the number of successful redials.
func (l *Link) Reconnects() uint64 {
	return l.reconnects.Load()
}

// Close stops reconnecting, closes the connection and waits for the loop.
// Safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)

		l.connMu.Lock()
		if l.conn != nil {
			l.conn.Close() //nolint:errcheck // Unblocks the read loop
		}
		l.connMu.Unlock()

		l.wg.Wait()
		l.logger.Info("bus link closed", "link", l.cfg.ID)
	})
	return nil
}

func (l *Link) run() {
	defer l.wg.Done()

	address := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))
	backoff := l.cfg.ReconnectInterval
	first := true

	for {
		if l.isClosed() {
			return
		}

		conn, err := l.dial(address)
		if err != nil {
			l.logger.Warn("bus link dial failed", "link", l.cfg.ID, "address", address, "error", err, "retry_in", backoff.String())
			if !l.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if !l.setConn(conn) {
			conn.Close() //nolint:errcheck // Closed while dialling
			return
		}
		if !first {
			l.reconnects.Add(1)
		}
		first = false
		backoff = l.cfg.ReconnectInterval
		l.logger.Info("bus link connected", "link", l.cfg.ID, "address", address)

		s := &session{
			conn:    conn,
			handler: l.handler,
			logger:  l.logger,
			onOverflow: func(size int) bool {
				metrics.BusOverflowsTotal.WithLabelValues(l.cfg.ID).Inc()
				l.logger.Warn("bus receive buffer overflow", "link", l.cfg.ID, "size", size)
				return false
			},
		}
		err = s.serve()

		l.setConn(nil)
		conn.Close() //nolint:errcheck // Already finished

		if l.isClosed() {
			return
		}
		if err != nil {
			l.logger.Error("bus link error", "link", l.cfg.ID, "error", err)
		} else {
			l.logger.Warn("bus link closed by peer", "link", l.cfg.ID)
		}
		if !l.sleep(backoff) {
			return
		}
	}
}

func (l *Link) dial(address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ConnectTimeout)
	defer cancel()

	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return conn, nil
}

// setConn records the active connection. It returns false if the link was
// closed in the meantime.
func (l *Link) setConn(conn net.Conn) bool {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if conn != nil && l.isClosed() {
		return false
	}
	l.conn = conn
	l.connected.Store(conn != nil)
	return true
}

// sleep waits d or until Close. It returns false on Close.
func (l *Link) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.done:
		return false
	case <-t.C:
		return true
	}
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// nextBackoff grows d by half, capped at maxReconnectInterval.
func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * 1.5)
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}
