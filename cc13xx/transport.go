package cc13xx

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Line identifies one of the control signals wired from the host to the target.
type Line byte

const (
	LineReset Line = iota
	LineBoot
	LineChipSelect
)

func (l Line) String() string {
	switch l {
	case LineReset:
		return "RESET"
	case LineBoot:
		return "BOOT"
	case LineChipSelect:
		return "CS"
	default:
		return fmt.Sprintf("LINE(%d)", byte(l))
	}
}

// Level is the electrical level of a control line. It converts directly to
// periph's gpio.Level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Transport moves raw bytes to and from the target and drives its control
// lines. Implementations never retry; Read returns exactly n bytes or fails
// with ErrTimeout once timeout has elapsed. Any other I/O problem is reported
// as a *LinkError.
type Transport interface {
	Write(p []byte) error
	Read(n int, timeout time.Duration) ([]byte, error)
	SetLine(line Line, level Level) error
	// PulseLine drives line low for d and releases it high again.
	PulseLine(line Line, d time.Duration) error
}

var ErrTimeout = errors.New("transport timeout")

// LinkError wraps a failure of the underlying bus or port.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error during %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}
