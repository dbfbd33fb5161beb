package device

import (
	"fmt"
	"time"

	"github.com/tbrandon/mbserver"
)

// Modbus function codes served by the register view.
const (
	FuncReadHoldingRegisters uint8 = 0x03
	FuncReadInputRegisters   uint8 = 0x04
)

// Register map exposed for every bound unit. Holding and input registers
// are the same view.
const (
	RegFlags      = 0 // bit0 online, bit1 random address, bit2 last report was a scan response
	RegRSSI       = 1 // int16, 0 if unknown
	RegTxPower    = 2 // int16, 0 if unknown
	RegAge        = 3 // seconds since last report, 0xFFFF if never seen
	RegCompanyID  = 4
	RegPayloadLen = 5 // manufacturer payload length in bytes
	RegPayload    = 6 // manufacturer payload, two bytes per register, big-endian

	payloadRegisters = 32
	RegisterCount    = RegPayload + payloadRegisters
)

// Register flag bits.
const (
	FlagOnline uint16 = 1 << iota
	FlagRandomAddress
	FlagScanResponse
)

const (
	maxReadQuantity = 125
	ageNeverSeen    = 0xFFFF
	ageMax          = 0xFFFE
)

// HandleBusRequest answers a Modbus read for unit and returns the response
// PDU data (byte count followed by register values).
func (r *Registry) HandleBusRequest(unit uint8, function uint8, data []byte) ([]byte, error) {
	d, ok := r.DeviceByUnit(int(unit))
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, unit)
	}

	if function != FuncReadHoldingRegisters && function != FuncReadInputRegisters {
		return nil, fmt.Errorf("%w: 0x%02X", ErrIllegalFunction, function)
	}
	if len(data) != 4 {
		return nil, fmt.Errorf("%w: request data length %d", ErrIllegalDataValue, len(data))
	}

	words := mbserver.BytesToUint16(data)
	start, quantity := int(words[0]), int(words[1])
	if quantity < 1 || quantity > maxReadQuantity {
		return nil, fmt.Errorf("%w: quantity %d", ErrIllegalDataValue, quantity)
	}
	if start+quantity > RegisterCount {
		return nil, fmt.Errorf("%w: registers %d..%d", ErrIllegalDataAddress, start, start+quantity-1)
	}

	regs := deviceRegisters(d, r.now(), r.opts.DeviceTimeout)
	out := make([]byte, 1, 1+2*quantity)
	out[0] = byte(2 * quantity)
	return append(out, mbserver.Uint16ToBytes(regs[start:start+quantity])...), nil
}

// deviceRegisters renders d into the register map.
func deviceRegisters(d *Device, now time.Time, timeout time.Duration) []uint16 {
	regs := make([]uint16, RegisterCount)

	if d.LastSeen == nil {
		regs[RegAge] = ageNeverSeen
	} else {
		age := now.Sub(*d.LastSeen)
		if timeout <= 0 || age <= timeout {
			regs[RegFlags] |= FlagOnline
		}
		secs := int64(age / time.Second)
		switch {
		case secs < 0:
			secs = 0
		case secs > ageMax:
			secs = ageMax
		}
		regs[RegAge] = uint16(secs)
	}

	if d.State[StateAddressType] == AddressRandom.String() {
		regs[RegFlags] |= FlagRandomAddress
	}
	if d.State[StateEventType] == EventScanRsp.String() {
		regs[RegFlags] |= FlagScanResponse
	}
	if n, ok := intValue(d.State[StateRSSI]); ok {
		regs[RegRSSI] = uint16(int16(n))
	}
	if n, ok := intValue(d.State[StateTxPower]); ok {
		regs[RegTxPower] = uint16(int16(n))
	}

	if md, ok := d.State[StateManufacturerData].(ManufacturerData); ok {
		regs[RegCompanyID] = md.CompanyID
		payload := []byte(md.Payload)
		if len(payload) > payloadRegisters*2 {
			payload = payload[:payloadRegisters*2]
		}
		regs[RegPayloadLen] = uint16(len(payload))
		if len(payload)%2 == 1 {
			payload = append(payload, 0)
		}
		copy(regs[RegPayload:], mbserver.BytesToUint16(payload))
	}

	return regs
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
