package reportcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/coalesce"
)

// DefaultRetention is how long a cached report stays eligible for replay.
const DefaultRetention = 720 * time.Minute

// Store loads and saves the cached report set.
type Store interface {
	Load(ctx context.Context) ([]device.Report, error)
	Save(ctx context.Context, reports []device.Report) error
}

// Logger is the logging surface the cache needs.
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

// Cache holds the most recent report per address.
type Cache struct {
	store     Store
	retention time.Duration
	logger    Logger
	now       func() time.Time

	mu      sync.Mutex
	reports map[string]device.Report
	closed  bool

	writer *coalesce.Writer
}

// New creates an empty cache. A retention of zero or less uses
// DefaultRetention.
func New(store Store, retention time.Duration, logger Logger) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Cache{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		reports:   make(map[string]device.Report),
	}
	c.writer = coalesce.New("report-cache", 0, c.dump, logger)
	return c
}

// Restore loads the store, keeps entries received within the retention
// window and passes each of them to replay in address order. A load
// failure is logged and leaves the cache empty. It returns the number of
// restored reports.
func (c *Cache) Restore(ctx context.Context, replay func(device.Report)) int {
	loaded, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("report cache not restored", "error", err)
		return 0
	}

	cutoff := c.now().Add(-c.retention)
	kept := make([]device.Report, 0, len(loaded))

	c.mu.Lock()
	for _, r := range loaded {
		if r.ReceivedAt.Before(cutoff) {
			continue
		}
		key := cacheKey(r.Address)
		if prev, ok := c.reports[key]; ok && prev.ReceivedAt.After(r.ReceivedAt) {
			continue
		}
		c.reports[key] = r
	}
	for _, r := range c.reports {
		kept = append(kept, r)
	}
	c.mu.Unlock()

	sortByAddress(kept)
	c.logger.Info("report cache restored", "loaded", len(loaded), "kept", len(kept))

	if replay != nil {
		for _, r := range kept {
			replay(r)
		}
	}
	return len(kept)
}

// Upsert stamps each report with the current time, replaces the cached
// report for its address and schedules a dump. The stamped reports are
// returned in input order.
func (c *Cache) Upsert(reports ...device.Report) []device.Report {
	if len(reports) == 0 {
		return nil
	}

	now := c.now()
	stamped := make([]device.Report, len(reports))

	c.mu.Lock()
	for i, r := range reports {
		r.ReceivedAt = now
		c.reports[cacheKey(r.Address)] = r
		stamped[i] = r
	}
	c.mu.Unlock()

	c.writer.Trigger()
	return stamped
}

// Snapshot returns the cached reports sorted by address.
func (c *Cache) Snapshot() []device.Report {
	c.mu.Lock()
	out := make([]device.Report, 0, len(c.reports))
	for _, r := range c.reports {
		out = append(out, r)
	}
	c.mu.Unlock()

	sortByAddress(out)
	return out
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// Dump writes the current set now and waits for the write to finish.
func (c *Cache) Dump(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writer.Trigger()
	return c.writer.Flush(ctx)
}

// Flush waits for any pending dump.
func (c *Cache) Flush(ctx context.Context) error {
	return c.writer.Flush(ctx)
}

// Close waits for pending dumps and stops accepting new ones.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.writer.Close(ctx)
}

func (c *Cache) dump(ctx context.Context) error {
	reports := c.Snapshot()
	if err := c.store.Save(ctx, reports); err != nil {
		return err
	}
	c.logger.Debug("report cache saved", "reports", len(reports))
	return nil
}

func cacheKey(address string) string {
	if addr, err := device.ParseAddress(address); err == nil {
		return addr
	}
	return address
}

func sortByAddress(reports []device.Report) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Address < reports[j].Address
	})
}
