package device

import (
	"time"
)

// Device is a registered field device.
//
// Address and Unit are both unique across the registry. State holds the
// fields derived from reports (see the State* keys).
type Device struct {
	ID       string         `json:"id,omitempty"`
	Address  string         `json:"address"`
	Unit     int            `json:"unit"`
	Config   map[string]any `json:"config,omitempty"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
	State    map[string]any `json:"state"`
}

// DeepCopy creates an independent copy of the device.
// Nested maps, slices and manufacturer data are copied recursively.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Config = deepCopyMap(d.Config)
	cpy.State = deepCopyMap(d.State)
	if cpy.State == nil {
		cpy.State = map[string]any{}
	}
	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []byte:
		return append([]byte(nil), val...)
	case HexBytes:
		return append(HexBytes(nil), val...)
	case ManufacturerData:
		val.Payload = append(HexBytes(nil), val.Payload...)
		val.Fields = deepCopyMap(val.Fields)
		return val
	default:
		return v
	}
}
