package bus

import (
	"errors"
	"fmt"
)

// Domain errors for bus connections.
var (
	// ErrBufferOverflow is matched by every OverflowError.
	ErrBufferOverflow = errors.New("bus: receive buffer overflow")

	// ErrClosed is returned when adding to or starting a closed component.
	ErrClosed = errors.New("bus: closed")
)

// OverflowError reports a discarded frame and the number of bytes dropped.
type OverflowError struct {
	Size int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("bus: receive buffer overflow (%d bytes discarded)", e.Size)
}

// Is makes errors.Is(err, ErrBufferOverflow) true.
func (e *OverflowError) Is(target error) bool {
	return target == ErrBufferOverflow
}
