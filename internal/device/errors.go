package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDuplicateUnit) {
//	    // try another unit
//	}
var (
	// ErrDeviceNotFound is returned when no device matches a unit or address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDuplicateUnit is returned when the bus unit is already bound.
	ErrDuplicateUnit = errors.New("device: bus unit already in use")

	// ErrDuplicateAddress is returned when the address is already registered.
	ErrDuplicateAddress = errors.New("device: address already registered")

	// ErrInvalidUnit is returned for a bus unit outside 1..255.
	ErrInvalidUnit = errors.New("device: invalid bus unit")

	// ErrInvalidAddress is returned when an address is not a 6-octet hex address.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrAdmissionFailed is returned when auto-discovery cannot admit a device.
	ErrAdmissionFailed = errors.New("device: admission failed")

	// ErrNoFreeUnit is wrapped by ErrAdmissionFailed when all units are bound.
	ErrNoFreeUnit = errors.New("device: no free bus unit")
)

// Bus request errors, mapped to Modbus exception codes by the bus package.
var (
	// ErrUnknownUnit is returned when a bus request targets an unbound unit.
	ErrUnknownUnit = errors.New("device: unknown bus unit")

	// ErrIllegalFunction is returned for unsupported function codes.
	ErrIllegalFunction = errors.New("device: illegal function")

	// ErrIllegalDataAddress is returned when a read exceeds the register map.
	ErrIllegalDataAddress = errors.New("device: illegal data address")

	// ErrIllegalDataValue is returned for malformed request data.
	ErrIllegalDataValue = errors.New("device: illegal data value")
)
