package bus

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tbrandon/mbserver"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// MBAP framing limits.
const (
	mbapHeaderSize = 7
	maxADUSize     = 260

	// The MBAP length field counts the unit id and the PDU.
	minMBAPLength = 3
	maxMBAPLength = maxADUSize - 6
)

// Handler answers a bus request for one unit.
type Handler interface {
	HandleBusRequest(unit uint8, function uint8, data []byte) ([]byte, error)
}

// readADU reads one MBAP frame. An implausible header discards whatever is
// buffered and returns an *OverflowError; the stream stays usable.
func readADU(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	protocol := binary.BigEndian.Uint16(header[2:4])
	length := int(binary.BigEndian.Uint16(header[4:6]))
	if protocol != 0 || length < minMBAPLength || length > maxMBAPLength {
		size := mbapHeaderSize + r.Buffered()
		r.Discard(r.Buffered()) //nolint:errcheck // Discarding only buffered bytes cannot fail
		return nil, &OverflowError{Size: size}
	}

	adu := make([]byte, 6+length)
	copy(adu, header)
	if _, err := io.ReadFull(r, adu[mbapHeaderSize:]); err != nil {
		return nil, err
	}
	return adu, nil
}

// respond builds the response ADU for a request ADU. Registry errors become
// Modbus exception responses.
func respond(h Handler, adu []byte) ([]byte, error) {
	frame, err := mbserver.NewTCPFrame(adu)
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	function := fmt.Sprintf("0x%02X", frame.Function)
	data, err := h.HandleBusRequest(frame.Device, frame.Function, frame.Data)
	if err != nil {
		exception := exceptionFor(err)
		frame.SetException(&exception)
		metrics.BusRequestsTotal.WithLabelValues(function, "exception").Inc()
		return frame.Bytes(), nil
	}

	frame.SetData(data)
	metrics.BusRequestsTotal.WithLabelValues(function, metrics.ResultOK).Inc()
	return frame.Bytes(), nil
}

// exceptionFor maps registry errors to Modbus exception codes.
func exceptionFor(err error) mbserver.Exception {
	switch {
	case errors.Is(err, device.ErrUnknownUnit):
		return mbserver.GatewayTargetDeviceFailedtoRespond
	case errors.Is(err, device.ErrIllegalFunction):
		return mbserver.IllegalFunction
	case errors.Is(err, device.ErrIllegalDataAddress):
		return mbserver.IllegalDataAddress
	case errors.Is(err, device.ErrIllegalDataValue):
		return mbserver.IllegalDataValue
	default:
		return mbserver.SlaveDeviceFailure
	}
}
