package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// NoGSMTime is the gateway time passed to decoders when the upload carries
// no time parameter.
const NoGSMTime int64 = -1

// GSMDecoder decodes an uploaded body. gsmTime is the uploader clock in
// epoch seconds, or NoGSMTime.
type GSMDecoder interface {
	DecodeGSM(gsmTime int64, body []byte) ([]device.Report, error)
}

// JSONDecoder decodes bodies holding a JSON array of reports, or an object
// with a "reports" array.
type JSONDecoder struct{}

// DecodeGSM implements GSMDecoder. The uploader clock is not needed because
// receive times are stamped by the gateway.
func (JSONDecoder) DecodeGSM(_ int64, body []byte) ([]device.Report, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var reports []device.Report
	if body[0] == '{' {
		var wrapped struct {
			Reports []device.Report `json:"reports"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
		}
		reports = wrapped.Reports
	} else if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}

	out := reports[:0]
	for _, r := range reports {
		addr, err := device.ParseAddress(r.Address)
		if err != nil {
			continue
		}
		r.Address = addr
		out = append(out, r)
	}
	return out, nil
}

// ParseGSMTime reads the time query parameter. Missing or malformed values
// give NoGSMTime.
func ParseGSMTime(v string) int64 {
	if v == "" {
		return NoGSMTime
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return NoGSMTime
	}
	return n
}

// Upserter caches reports and returns them stamped with the receive time;
// the report cache implements it.
type Upserter interface {
	Upsert(reports ...device.Report) []device.Report
}

// GSMIngester decodes GSM uploads, caches them and applies them to the
// registry.
type GSMIngester struct {
	decoder GSMDecoder
	cache   Upserter
	handler ReportHandler
	logger  Logger
	now     func() time.Time
}

// NewGSMIngester creates an ingester. cache may be nil; decoder nil uses
// JSONDecoder.
func NewGSMIngester(decoder GSMDecoder, cache Upserter, handler ReportHandler, logger Logger) *GSMIngester {
	if decoder == nil {
		decoder = JSONDecoder{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &GSMIngester{
		decoder: decoder,
		cache:   cache,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest decodes body and applies every report. It returns the number of
// reports applied.
func (g *GSMIngester) Ingest(gsmTime int64, body []byte) (int, error) {
	reports, err := g.decoder.DecodeGSM(gsmTime, body)
	if err != nil {
		return 0, err
	}
	if len(reports) == 0 {
		return 0, nil
	}

	if g.cache != nil {
		reports = g.cache.Upsert(reports...)
	} else {
		now := g.now()
		for i := range reports {
			reports[i].ReceivedAt = now
		}
	}

	applied := 0
	for _, r := range reports {
		metrics.ReportsTotal.WithLabelValues(SourceGSM).Inc()
		if err := g.handler.HandleReport(r); err != nil {
			if errors.Is(err, device.ErrAdmissionFailed) {
				g.logger.Warn("gsm report dropped", "address", r.Address, "error", err)
				continue
			}
			return applied, err
		}
		applied++
	}

	g.logger.Debug("gsm upload ingested", "reports", len(reports), "applied", applied, "gsm_time", gsmTime)
	return applied, nil
}

// Replay applies a restored report without caching it again.
func (g *GSMIngester) Replay(r device.Report) {
	if err := g.handler.HandleReport(r); err != nil {
		g.logger.Warn("restored gsm report dropped", "address", r.Address, "error", err)
	}
}
