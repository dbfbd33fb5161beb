package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration.
// Broker-backed tests live in integration_test.go.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fieldgate-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.MQTTConfig)
		wantBroker string
		wantUser   string
	}{
		{name: "plain", mutate: func(*config.MQTTConfig) {}, wantBroker: "tcp://127.0.0.1:1883"},
		{
			name: "tls with auth",
			mutate: func(c *config.MQTTConfig) {
				c.Broker.TLS = true
				c.Broker.Port = 8883
				c.Auth.Username = "gw"
				c.Auth.Password = "secret"
			},
			wantBroker: "ssl://127.0.0.1:8883",
			wantUser:   "gw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			opts := newClient(cfg).options()
			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantBroker {
				t.Errorf("Servers = %v, want [%s]", opts.Servers, tt.wantBroker)
			}
			if opts.ClientID != "fieldgate-test" {
				t.Errorf("ClientID = %q, want fieldgate-test", opts.ClientID)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if cfg.Broker.TLS && opts.TLSConfig == nil {
				t.Error("TLSConfig not set for TLS broker")
			}
			if !opts.AutoReconnect || !opts.ConnectRetry {
				t.Error("reconnect not enabled")
			}
			if opts.MaxReconnectInterval != 5*time.Second {
				t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
			}
		})
	}
}

func TestClientOptions_LastWill(t *testing.T) {
	opts := newClient(testConfig()).options()

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatalf("will enabled=%v retained=%v", opts.WillEnabled, opts.WillRetained)
	}
	if opts.WillTopic != "fieldgate/system/status" || opts.WillQos != 1 {
		t.Errorf("will topic = %q qos = %d", opts.WillTopic, opts.WillQos)
	}

	var will statusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will.Status != statusOffline || will.Reason != reasonConnection || will.ClientID != "fieldgate-test" {
		t.Errorf("will = %+v", will)
	}
}

func TestEncodeStatus(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name   string
		status string
		reason string
		want   string
	}{
		{
			name:   "online omits reason",
			status: statusOnline,
			want:   `{"status":"online","client_id":"gw","timestamp":"2026-10-17T07:30:00Z"}`,
		},
		{
			name:   "graceful offline",
			status: statusOffline,
			reason: reasonShutdown,
			want:   `{"status":"offline","client_id":"gw","reason":"graceful_shutdown","timestamp":"2026-10-17T07:30:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(encodeStatus(tt.status, "gw", tt.reason, at)); got != tt.want {
				t.Errorf("encodeStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"scan pattern", topics.ScanEvents(), "fieldgate/scan/+"},
		{"state colon", topics.DeviceState("aa:bb:cc:dd:ee:ff"), "fieldgate/device/AABBCCDDEEFF/state"},
		{"state dash", topics.DeviceState("AA-BB-CC-DD-EE-FF"), "fieldgate/device/AABBCCDDEEFF/state"},
		{"state dotted", topics.DeviceState("aabb.ccdd.eeff"), "fieldgate/device/AABBCCDDEEFF/state"},
		{"status", topics.SystemStatus(), "fieldgate/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestScannerFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"fieldgate/scan/hall-pi", "hall-pi"},
		{"site/b2/scanners/roof", "roof"},
		{"scanner", "scanner"},
		{"fieldgate/scan/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := scannerFromTopic(tt.topic); got != tt.want {
				t.Errorf("scannerFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestPublishRetained_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{name: "empty topic", topic: "", wantErr: ErrInvalidTopic},
		{name: "oversized payload", topic: "fieldgate/device/X/state", payload: make([]byte, maxStatePayload+1), wantErr: ErrPublishFailed},
		{name: "not connected", topic: "fieldgate/device/X/state", payload: []byte("{}"), wantErr: ErrNotConnected},
		{name: "clearing while disconnected", topic: "fieldgate/device/X/state", wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.PublishRetained(tt.topic, tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("PublishRetained() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeScans_Validation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		pattern string
		handler ScanHandler
		wantErr error
	}{
		{name: "empty pattern", pattern: "", handler: noop, wantErr: ErrInvalidTopic},
		{name: "nil handler", pattern: "fieldgate/scan/+", wantErr: ErrSubscribeFailed},
		{name: "not connected", pattern: "fieldgate/scan/+", handler: noop, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.SubscribeScans(tt.pattern, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("SubscribeScans() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(c.scans) != 0 {
		t.Errorf("%d scan subscriptions kept after failures", len(c.scans))
	}
}

func TestUnsubscribe_WhileDisconnected(t *testing.T) {
	c := newClient(testConfig())
	c.scans["fieldgate/scan/+"] = func(string, []byte) error { return nil }

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("fieldgate/scan/+"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(c.scans) != 0 {
		t.Error("pattern still restored on reconnect")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := newClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("HealthCheck() with cancelled context error = %v", err)
	}
}

func TestClose_NeverConnected(t *testing.T) {
	if err := newClient(testConfig()).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestConnectionCallbacks(t *testing.T) {
	c := newClient(testConfig())
	c.connected.Store(true)

	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })
	c.handleConnectionLost(errors.New("broker went away"))

	if c.connected.Load() {
		t.Error("still marked connected after connection loss")
	}
	if lost == nil || lost.Error() != "broker went away" {
		t.Errorf("disconnect callback error = %v", lost)
	}
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestScanCallback(t *testing.T) {
	logger := &recordingLogger{}
	c := newClient(testConfig())
	c.SetLogger(logger)

	msg := fakeMessage{topic: "fieldgate/scan/hall-pi", payload: []byte(`{"address":"AA:BB:CC:DD:EE:FF"}`)}

	var gotScanner, gotPayload string
	c.scanCallback(func(scanner string, payload []byte) error {
		gotScanner, gotPayload = scanner, string(payload)
		return nil
	})(nil, msg)
	if gotScanner != "hall-pi" || gotPayload != string(msg.payload) {
		t.Errorf("handler got (%q, %q)", gotScanner, gotPayload)
	}

	c.scanCallback(func(string, []byte) error { return errors.New("bad scan") })(nil, msg)
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one entry for a rejected event", logger.warns)
	}

	c.scanCallback(func(string, []byte) error { panic("boom") })(nil, msg)
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one entry for a recovered panic", logger.errors)
	}
}
