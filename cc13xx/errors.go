package cc13xx

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNack         = errors.New("device answered with NACK")
	ErrFrameCorrupt = errors.New("corrupt frame")
	ErrCancelled    = errors.New("operation cancelled")
	ErrEmptyImage   = errors.New("image contains no data")
	ErrRunConsumed  = errors.New("flash run already consumed")
)

// CommandFailedError is returned once the retry budget of a command is spent.
type CommandFailedError struct {
	Cmd      BootloaderCommand
	Attempts int
	Err      error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %s failed after %d attempts: %v", e.Cmd, e.Attempts, e.Err)
}

func (e *CommandFailedError) Unwrap() error { return e.Err }

// StatusError reports a non-success status read back after a command.
type StatusError struct {
	Cmd    BootloaderCommand
	Status BootloaderStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command %s rejected by device, status %s (%#02x)", e.Cmd, e.Status, byte(e.Status))
}

type EntryFailedError struct {
	Attempts int
	Err      error
}

func (e *EntryFailedError) Error() string {
	return fmt.Sprintf("bootloader did not answer after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EntryFailedError) Unwrap() error { return e.Err }

type ImageTooLargeError struct {
	Address  uint32
	End      uint32
	FlashEnd uint32
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("image segment %#08x-%#08x exceeds flash end %#08x", e.Address, e.End, e.FlashEnd)
}

type EraseFailedError struct {
	Address uint32
	Err     error
}

func (e *EraseFailedError) Error() string {
	return fmt.Sprintf("erase at %#08x failed: %v", e.Address, e.Err)
}

func (e *EraseFailedError) Unwrap() error { return e.Err }

type WriteFailedError struct {
	Address uint32
	Err     error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("write at %#08x failed: %v", e.Address, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

type VerifyFailedError struct {
	Address  uint32
	Length   uint32
	Expected uint32
	Actual   uint32
}

func (e *VerifyFailedError) Error() string {
	return fmt.Sprintf("verify of %#08x+%#x failed: device crc %#08x, image crc %#08x", e.Address, e.Length, e.Actual, e.Expected)
}

// CCFGError is returned when an image would lock the bootloader out.
type CCFGError struct {
	Address uint32
	Value   uint32
}

func (e *CCFGError) Error() string {
	return fmt.Sprintf("image disables the bootloader backdoor, BL_CONFIG at %#08x is %#08x", e.Address, e.Value)
}

// FlashError carries the pipeline phase a failure happened in.
type FlashError struct {
	Phase Phase
	Err   error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *FlashError) Unwrap() error { return e.Err }

// InvalidStateError is returned for operations the session state forbids.
type InvalidStateError struct {
	Op     string
	State  State
	Reason error
}

func (e *InvalidStateError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s not allowed in state %s (%v)", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error { return e.Reason }

func isRetryable(err error) bool {
	var le *LinkError
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNack) ||
		errors.Is(err, ErrFrameCorrupt) ||
		errors.As(err, &le)
}
