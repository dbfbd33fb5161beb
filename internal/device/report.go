package device

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the advertising PDU kind a report was built from.
type EventType uint8

// Advertising event types.
const (
	EventAdvInd  EventType = 0
	EventScanRsp EventType = 4
)

func (e EventType) String() string {
	switch e {
	case EventAdvInd:
		return "AdvInd"
	case EventScanRsp:
		return "ScanRsp"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(e))
	}
}

// AddressType distinguishes public from random hardware addresses.
type AddressType uint8

// Address types.
const (
	AddressPublic AddressType = 0
	AddressRandom AddressType = 1
)

func (a AddressType) String() string {
	switch a {
	case AddressPublic:
		return "Public"
	case AddressRandom:
		return "Random"
	default:
		return fmt.Sprintf("AddressType(%d)", uint8(a))
	}
}

// DataType is the EIR/AD structure type of a report data element.
type DataType uint8

// Data element types carried in reports.
const (
	DataLocalNameShort   DataType = 0x08
	DataTxPowerLevel     DataType = 0x0A
	DataManufacturerData DataType = 0xFF
)

func (d DataType) String() string {
	switch d {
	case DataLocalNameShort:
		return "LocalNameShort"
	case DataTxPowerLevel:
		return "TxPowerLevel"
	case DataManufacturerData:
		return "ManufacturerSpecificData"
	default:
		return fmt.Sprintf("DataType(0x%02X)", uint8(d))
	}
}

// HexBytes is a byte slice that encodes as a hex string in JSON.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex payload: %w", err)
	}
	*h = decoded
	return nil
}

// ManufacturerData is a decoded manufacturer-specific data element.
type ManufacturerData struct {
	CompanyID uint16         `json:"companyId"`
	Payload   HexBytes       `json:"payload"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// DataElement is one typed value of a report.
// Value is a string for LocalNameShort, an int for TxPowerLevel and a
// ManufacturerData for DataManufacturerData.
type DataElement struct {
	Type  DataType
	Value any
}

type dataElementJSON struct {
	Type      DataType        `json:"type"`
	TypeLabel string          `json:"typeLabel"`
	Value     json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (e DataElement) MarshalJSON() ([]byte, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dataElementJSON{
		Type:      e.Type,
		TypeLabel: e.Type.String(),
		Value:     value,
	})
}

// UnmarshalJSON implements json.Unmarshaler, restoring the typed value.
func (e *DataElement) UnmarshalJSON(b []byte) error {
	var raw dataElementJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Type = raw.Type

	switch raw.Type {
	case DataLocalNameShort:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("local name: %w", err)
		}
		e.Value = s
	case DataTxPowerLevel:
		var n int
		if err := json.Unmarshal(raw.Value, &n); err != nil {
			return fmt.Errorf("tx power: %w", err)
		}
		e.Value = n
	case DataManufacturerData:
		var m ManufacturerData
		if err := json.Unmarshal(raw.Value, &m); err != nil {
			return fmt.Errorf("manufacturer data: %w", err)
		}
		e.Value = m
	default:
		var v any
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &v); err != nil {
				return err
			}
		}
		e.Value = v
	}
	return nil
}

// Report is the canonical advertising report every ingestion channel
// produces. ReceivedAt is stamped by the gateway, never by the sender.
type Report struct {
	Address     string
	EventType   EventType
	AddressType AddressType
	RSSI        *int
	Data        []DataElement
	ReceivedAt  time.Time
}

type reportJSON struct {
	Address          string        `json:"address"`
	EventType        EventType     `json:"eventType"`
	EventTypeLabel   string        `json:"eventTypeLabel"`
	AddressType      AddressType   `json:"addressType"`
	AddressTypeLabel string        `json:"addressTypeLabel"`
	RSSI             *int          `json:"rssi,omitempty"`
	Data             []DataElement `json:"data"`
	ReceivedAt       int64         `json:"receivedAt"`
}

// MarshalJSON implements json.Marshaler. receivedAt is epoch milliseconds.
func (r Report) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = []DataElement{}
	}
	var receivedAt int64
	if !r.ReceivedAt.IsZero() {
		receivedAt = r.ReceivedAt.UnixMilli()
	}
	return json.Marshal(reportJSON{
		Address:          r.Address,
		EventType:        r.EventType,
		EventTypeLabel:   r.EventType.String(),
		AddressType:      r.AddressType,
		AddressTypeLabel: r.AddressType.String(),
		RSSI:             r.RSSI,
		Data:             data,
		ReceivedAt:       receivedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Labels are ignored.
func (r *Report) UnmarshalJSON(b []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Report{
		Address:     raw.Address,
		EventType:   raw.EventType,
		AddressType: raw.AddressType,
		RSSI:        raw.RSSI,
		Data:        raw.Data,
	}
	if raw.ReceivedAt != 0 {
		r.ReceivedAt = time.UnixMilli(raw.ReceivedAt)
	}
	return nil
}

// State keys written by reports.
const (
	StateEventType        = "event_type"
	StateAddressType      = "address_type"
	StateRSSI             = "rssi"
	StateLocalName        = "local_name"
	StateTxPower          = "tx_power"
	StateManufacturerData = "manufacturer_data"
	StateLastSeen         = "last_seen"
)

// Fields returns the device state fields this report sets.
func (r Report) Fields() map[string]any {
	fields := map[string]any{
		StateEventType:   r.EventType.String(),
		StateAddressType: r.AddressType.String(),
	}
	if r.RSSI != nil {
		fields[StateRSSI] = *r.RSSI
	}
	for _, el := range r.Data {
		switch el.Type {
		case DataLocalNameShort:
			fields[StateLocalName] = el.Value
		case DataTxPowerLevel:
			fields[StateTxPower] = el.Value
		case DataManufacturerData:
			fields[StateManufacturerData] = el.Value
		default:
			fields[fmt.Sprintf("data_0x%02x", uint8(el.Type))] = el.Value
		}
	}
	return fields
}
