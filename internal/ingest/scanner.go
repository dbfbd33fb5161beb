package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// Report sources used in metrics and logs.
const (
	SourceScan = "scan"
	SourceGSM  = "gsm"
)

// Logger is the logging surface used by ingestion.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ReportHandler applies reports; the device registry implements it.
type ReportHandler interface {
	HandleReport(report device.Report) error
}

// Subscriber is the MQTT surface the scanner needs.
type Subscriber interface {
	SubscribeScans(pattern string, handler mqtt.ScanHandler) error
	Unsubscribe(pattern string) error
}

// Scanner reads scan events from MQTT and feeds them to the registry.
type Scanner struct {
	sub        Subscriber
	topic      string
	normalizer *Normalizer
	handler    ReportHandler
	logger     Logger
	now        func() time.Time
}

// NewScanner creates a scanner on the topic pattern. Call Start to subscribe.
func NewScanner(sub Subscriber, topic string, n *Normalizer, handler ReportHandler, logger Logger) *Scanner {
	if topic == "" {
		topic = mqtt.Topics{}.ScanEvents()
	}
	if n == nil {
		n = NewNormalizer(nil)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scanner{
		sub:        sub,
		topic:      topic,
		normalizer: n,
		handler:    handler,
		logger:     logger,
		now:        time.Now,
	}
}

// Start subscribes to the scan topic.
func (s *Scanner) Start() error {
	if err := s.sub.SubscribeScans(s.topic, s.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	s.logger.Info("scanner started", "topic", s.topic)
	return nil
}

// Stop unsubscribes from the scan topic.
func (s *Scanner) Stop() error {
	return s.sub.Unsubscribe(s.topic)
}

// HandleMessage processes one scan event payload from the named scanner.
func (s *Scanner) HandleMessage(scanner string, payload []byte) error {
	var ev ScanEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScanEvent, err)
	}

	report, ok := s.normalizer.Normalize(ev)
	if !ok {
		return nil
	}
	report.ReceivedAt = s.now()

	metrics.ReportsTotal.WithLabelValues(SourceScan).Inc()

	if err := s.handler.HandleReport(report); err != nil {
		if errors.Is(err, device.ErrAdmissionFailed) || errors.Is(err, device.ErrInvalidAddress) {
			s.logger.Warn("scan report dropped", "scanner", scanner, "address", report.Address, "error", err)
			return nil
		}
		return err
	}
	return nil
}
