package device

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Bus unit range assignable to devices.
const (
	MinUnit = 1
	MaxUnit = 255
)

const addressOctets = 6

var addressSeparators = strings.NewReplacer(":", "", "-", "", ".", "")

// ParseAddress normalises a hardware address to upper-case colon form
// (AA:BB:CC:DD:EE:FF). Colons, dashes and dots are accepted as separators,
// or none at all.
func ParseAddress(s string) (string, error) {
	digits := addressSeparators.Replace(strings.TrimSpace(s))
	if len(digits) != addressOctets*2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(digits); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	digits = strings.ToUpper(digits)
	var b strings.Builder
	b.Grow(addressOctets*3 - 1)
	for i := 0; i < len(digits); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(digits[i : i+2])
	}
	return b.String(), nil
}

// AutoID returns the record id given to an auto-discovered device: "auto-"
// followed by the last three octets of its address.
func AutoID(address string) string {
	digits := addressSeparators.Replace(address)
	if len(digits) > 6 {
		digits = digits[len(digits)-6:]
	}
	return "auto-" + digits
}

// ValidUnit reports whether unit is an assignable bus unit.
func ValidUnit(unit int) bool {
	return unit >= MinUnit && unit <= MaxUnit
}

// parseUnitKey interprets key as a decimal bus unit.
func parseUnitKey(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return n, true
}
