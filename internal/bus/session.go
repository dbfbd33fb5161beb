package bus

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"
)

const (
	readBufferSize      = 512
	defaultWriteTimeout = 5 * time.Second
)

// session serves request frames on one connection until it closes.
type session struct {
	conn    net.Conn
	handler Handler
	logger  Logger

	// onOverflow is called for every discarded frame; returning true ends
	// the session.
	onOverflow func(size int) bool
}

// serve reads frames and writes responses. A clean close returns nil.
func (s *session) serve() error {
	r := bufio.NewReaderSize(s.conn, readBufferSize)

	for {
		adu, err := readADU(r)
		if err != nil {
			var overflow *OverflowError
			if errors.As(err, &overflow) {
				if s.onOverflow != nil && s.onOverflow(overflow.Size) {
					return nil
				}
				continue
			}
			if isClosedConn(err) {
				return nil
			}
			return err
		}

		resp, err := respond(s.handler, adu)
		if err != nil {
			s.logger.Debug("dropping bus frame", "remote", s.conn.RemoteAddr().String(), "error", err)
			continue
		}

		if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
			return err
		}
		if _, err := s.conn.Write(resp); err != nil {
			if isClosedConn(err) {
				return nil
			}
			return err
		}
	}
}

func isClosedConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
