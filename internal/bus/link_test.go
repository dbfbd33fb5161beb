package bus

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
)

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{time.Second, 1500 * time.Millisecond},
		{5 * time.Second, 7500 * time.Millisecond},
		{100 * time.Second, maxReconnectInterval},
		{maxReconnectInterval, maxReconnectInterval},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.in); got != tt.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func acceptOne(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	ln.(*net.TCPListener).SetDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLink_ServesAndReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)

	link := NewLink(config.LinkConfig{
		ID:                "master",
		Host:              "127.0.0.1",
		Port:              p,
		ReconnectInterval: 10 * time.Millisecond,
	}, fakeHandler{}, nil)
	if err := link.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer link.Close()

	master := acceptOne(t, ln)
	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0x12, 0x34}
	master.SetDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	if _, err := master.Write(readRequest(1)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, len(want))
	if _, err := io.ReadFull(master, got); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("response = % X, want % X", got, want)
	}
	waitFor(t, "connected", link.IsConnected)

	// Dropping the connection makes the link redial.
	master.Close()
	acceptOne(t, ln)
	waitFor(t, "reconnect", func() bool { return link.Reconnects() == 1 })
}

func TestLink_CloseStopsRedial(t *testing.T) {
	link := NewLink(config.LinkConfig{
		ID:                "nowhere",
		Host:              "127.0.0.1",
		Port:              1,
		ConnectTimeout:    50 * time.Millisecond,
		ReconnectInterval: time.Hour,
	}, fakeHandler{}, nil)
	if err := link.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		link.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() blocked on the backoff sleep")
	}

	if link.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := link.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}
