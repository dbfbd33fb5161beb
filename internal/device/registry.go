package device

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/coalesce"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Registry.
type Options struct {
	// AutoDiscovery admits unknown addresses by allocating a free unit.
	AutoDiscovery bool

	// Remember persists auto-admitted devices through Store.
	Remember bool

	// Store persists device records. Nil disables persistence.
	Store RecordStore

	// SaveDelay is the debounce window for record saves.
	SaveDelay time.Duration

	// DeviceTimeout is how long after its last report a device counts as
	// online in the register view. Zero means online once seen.
	DeviceTimeout time.Duration
}

// Registry owns every known device, keyed by address and by bus unit.
//
// All mutations (add, remove, report) are serialised. Their events are
// queued in mutation order and delivered after the mutation releases its
// lock, one event at a time. A subscriber may call back into the registry,
// including mutating methods; the events those calls produce are delivered
// once the current event has reached every subscriber. Reads never wait
// for event delivery.
//
// All public methods are thread-safe.
type Registry struct {
	opts   Options
	logger Logger
	now    func() time.Time

	// writeMu serialises mutations and the queueing of their events.
	writeMu sync.Mutex

	// mu protects the maps below for readers.
	mu        sync.RWMutex
	byAddress map[string]*Device
	byUnit    map[int]*Device
	order     []string
	records   []Record
	disabled  map[string]bool

	subsMu  sync.Mutex
	subs    []subscriber
	nextSub uint64

	// queueMu protects pending and dispatching.
	queueMu     sync.Mutex
	pending     []Event
	dispatching bool

	saver *coalesce.Writer
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		opts:      opts,
		logger:    noopLogger{},
		now:       time.Now,
		byAddress: make(map[string]*Device),
		byUnit:    make(map[int]*Device),
		disabled:  make(map[string]bool),
	}
	if opts.Store != nil {
		r.saver = coalesce.New("device-records", opts.SaveDelay, r.saveRecords, r.logger)
	}
	return r
}

// SetLogger sets the logger for the registry.
// Call before the registry is shared between goroutines.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
	if r.opts.Store != nil {
		r.saver = coalesce.New("device-records", r.opts.SaveDelay, r.saveRecords, logger)
	}
}

// AddDevice registers a device at unit and emits device:add.
//
// It fails with ErrDuplicateUnit or ErrDuplicateAddress if either key is
// already bound, leaving the registry unchanged.
func (r *Registry) AddDevice(address string, unit int, config map[string]any) (*Device, error) {
	defer r.dispatch()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	d, err := r.add("", address, unit, config)
	if err != nil {
		return nil, err
	}
	r.emit(Event{Kind: EventAdd, Device: *d.DeepCopy()})
	return d, nil
}

// add binds a new device. Callers hold writeMu.
func (r *Registry) add(id, address string, unit int, config map[string]any) (*Device, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if !ValidUnit(unit) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUnit[unit]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateUnit, unit)
	}
	if _, ok := r.byAddress[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}

	d := &Device{
		ID:      id,
		Address: addr,
		Unit:    unit,
		Config:  deepCopyMap(config),
		State:   map[string]any{},
	}
	r.byAddress[addr] = d
	r.byUnit[unit] = d
	r.order = append(r.order, addr)
	metrics.Devices.Set(float64(len(r.order)))

	return d.DeepCopy(), nil
}

// GetDevice looks a device up by decimal bus unit or by address.
// The returned device is a deep copy.
func (r *Registry) GetDevice(key string) (*Device, bool) {
	if unit, ok := parseUnitKey(key); ok {
		return r.DeviceByUnit(unit)
	}
	return r.DeviceByAddress(key)
}

// DeviceByUnit looks a device up by bus unit.
func (r *Registry) DeviceByUnit(unit int) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byUnit[unit]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// DeviceByAddress looks a device up by address in any accepted spelling.
func (r *Registry) DeviceByAddress(address string) (*Device, bool) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byAddress[addr]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// GetDevices returns every device in insertion order. The slice is never nil.
func (r *Registry) GetDevices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, addr := range r.order {
		devices = append(devices, *r.byAddress[addr].DeepCopy())
	}
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// RemoveDevice deletes the device matching key (unit or address), drops its
// record and emits device:remove.
func (r *Registry) RemoveDevice(key string) error {
	defer r.dispatch()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, ok := r.GetDevice(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}

	r.mu.Lock()
	delete(r.byAddress, current.Address)
	delete(r.byUnit, current.Unit)
	for i, addr := range r.order {
		if addr == current.Address {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	recordRemoved := r.removeRecordLocked(current.Address)
	metrics.Devices.Set(float64(len(r.order)))
	r.mu.Unlock()

	r.logger.Info("device removed", "address", current.Address, "unit", current.Unit)
	if recordRemoved {
		r.scheduleSave()
	}
	r.emit(Event{Kind: EventRemove, Device: *current})
	return nil
}

// HandleReport applies a report to its device and emits device:change.
//
// An unknown address is admitted first when auto-discovery is enabled
// (device:add precedes device:change); otherwise the report is ignored.
// When every unit is bound the report is dropped and an error wrapping
// ErrAdmissionFailed and ErrNoFreeUnit is returned.
func (r *Registry) HandleReport(report Report) error {
	addr, err := ParseAddress(report.Address)
	if err != nil {
		return err
	}

	defer r.dispatch()
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	_, known := r.byAddress[addr]
	disabled := r.disabled[addr]
	r.mu.RUnlock()

	if !known {
		if !r.opts.AutoDiscovery || disabled {
			r.logger.Debug("ignoring report from unknown device", "address", addr)
			return nil
		}
		if err := r.admit(addr); err != nil {
			return err
		}
	}

	seen := report.ReceivedAt
	if seen.IsZero() {
		seen = r.now()
	}

	r.mu.Lock()
	d := r.byAddress[addr]
	changes := make(map[string]any)
	for k, v := range report.Fields() {
		if old, ok := d.State[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		d.State[k] = deepCopyValue(v)
		changes[k] = deepCopyValue(v)
	}
	d.LastSeen = &seen
	changes[StateLastSeen] = seen
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.emit(Event{Kind: EventChange, Device: *snapshot, Changes: changes})
	return nil
}

// admit allocates the lowest free unit to addr. Callers hold writeMu.
func (r *Registry) admit(addr string) error {
	id := AutoID(addr)
	for unit := MinUnit; unit <= MaxUnit; unit++ {
		d, err := r.add(id, addr, unit, nil)
		if errors.Is(err, ErrDuplicateUnit) {
			continue
		}
		if err != nil {
			metrics.AdmissionsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: %s: %w", ErrAdmissionFailed, addr, err)
		}

		r.mu.Lock()
		r.insertRecordLocked(Record{ID: id, Enabled: true, Address: addr, Unit: unit})
		r.mu.Unlock()

		metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
		r.logger.Info("device admitted", "address", addr, "unit", unit, "id", id)
		if r.opts.Remember {
			r.scheduleSave()
		}
		r.emit(Event{Kind: EventAdd, Device: *d})
		return nil
	}

	metrics.AdmissionsTotal.WithLabelValues("exhausted").Inc()
	r.logger.Warn("device admission failed", "address", addr, "error", ErrNoFreeUnit)
	return fmt.Errorf("%w: %s: %w", ErrAdmissionFailed, addr, ErrNoFreeUnit)
}

// Close flushes any pending record save.
func (r *Registry) Close(ctx context.Context) error {
	if r.saver == nil {
		return nil
	}
	return r.saver.Close(ctx)
}
