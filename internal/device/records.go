package device

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
)

// Record is a device entry in the configuration store.
type Record struct {
	ID      string         `yaml:"id,omitempty" json:"id,omitempty"`
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Address string         `yaml:"address" json:"address"`
	Unit    int            `yaml:"unit" json:"unit"`
	Config  map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// RecordStore loads and saves the device record list.
type RecordStore interface {
	LoadRecords(ctx context.Context) ([]Record, error)
	SaveRecords(ctx context.Context, records []Record) error
}

// RecordFromConfig converts a static device entry.
func RecordFromConfig(dc config.DeviceConfig) Record {
	return Record{
		ID:      dc.ID,
		Enabled: dc.IsEnabled(),
		Address: dc.Address,
		Unit:    dc.Unit,
		Config:  dc.Config,
	}
}

// RecordsFromConfig converts the devices section of the configuration.
func RecordsFromConfig(devices []config.DeviceConfig) []Record {
	records := make([]Record, 0, len(devices))
	for _, dc := range devices {
		records = append(records, RecordFromConfig(dc))
	}
	return records
}

// MergeRecords returns base followed by the entries of extra whose address
// is not in base. Addresses are compared in normalised form.
func MergeRecords(base, extra []Record) []Record {
	merged := make([]Record, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base))
	for _, rec := range base {
		merged = append(merged, rec)
		if addr, err := ParseAddress(rec.Address); err == nil {
			seen[addr] = true
		}
	}
	for _, rec := range extra {
		addr, err := ParseAddress(rec.Address)
		if err == nil && seen[addr] {
			continue
		}
		merged = append(merged, rec)
	}
	return merged
}

// LoadRecords registers every enabled record. Records that fail admission
// are logged and skipped. Disabled records are kept for persistence and
// their addresses are never auto-admitted.
func (r *Registry) LoadRecords(records []Record) {
	defer r.dispatch()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.records = make([]Record, 0, len(records))
	for _, rec := range records {
		r.records = append(r.records, cloneRecord(rec))
	}
	r.mu.Unlock()

	for _, rec := range records {
		if !rec.Enabled {
			if addr, err := ParseAddress(rec.Address); err == nil {
				r.mu.Lock()
				r.disabled[addr] = true
				r.mu.Unlock()
			}
			r.logger.Debug("skipping disabled device record", "id", rec.ID, "address", rec.Address)
			continue
		}

		d, err := r.add(rec.ID, rec.Address, rec.Unit, rec.Config)
		if err != nil {
			r.logger.Warn("device record not loaded",
				"id", rec.ID,
				"address", rec.Address,
				"unit", rec.Unit,
				"error", err,
			)
			continue
		}
		r.emit(Event{Kind: EventAdd, Device: *d})
	}

	r.logger.Info("device records loaded", "records", len(records), "devices", r.Count())
}

// Records returns a copy of the current record list.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, cloneRecord(rec))
	}
	return out
}

// FlushRecords writes any pending record save now and waits for it.
func (r *Registry) FlushRecords(ctx context.Context) error {
	if r.saver == nil {
		return nil
	}
	return r.saver.Flush(ctx)
}

// insertRecordLocked appends rec and keeps the list ordered by unit.
func (r *Registry) insertRecordLocked(rec Record) {
	r.records = append(r.records, rec)
	sort.SliceStable(r.records, func(i, j int) bool {
		return r.records[i].Unit < r.records[j].Unit
	})
}

func (r *Registry) removeRecordLocked(addr string) bool {
	for i, rec := range r.records {
		if a, err := ParseAddress(rec.Address); err == nil && a == addr {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) scheduleSave() {
	if r.saver != nil {
		r.saver.Trigger()
	}
}

// saveRecords is the coalesced write function.
func (r *Registry) saveRecords(ctx context.Context) error {
	records := r.Records()
	if err := r.opts.Store.SaveRecords(ctx, records); err != nil {
		return fmt.Errorf("saving %d device records: %w", len(records), err)
	}
	r.logger.Debug("device records saved", "records", len(records))
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Config = deepCopyMap(rec.Config)
	return rec
}
