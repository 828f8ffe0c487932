package ecflash

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the package. Wrap with fmt.Errorf("...: %w",
// err) where more context is useful; callers should use errors.Is to test.
var (
	// ErrPrivilegeDenied is returned when ring-3 I/O privilege could not be
	// acquired.
	ErrPrivilegeDenied = errors.New("ecflash: I/O privilege denied, run as root")
	// ErrUnknownEC is returned when the Super-I/O probe doesn't match a known
	// chip ID.
	ErrUnknownEC = errors.New("ecflash: unknown EC")
	// ErrTimeout is returned when a status-register poll exceeds its budget.
	ErrTimeout = errors.New("ecflash: EC channel timeout")
	// ErrStartRejected is returned when the EC doesn't ack ISP mode entry.
	ErrStartRejected = errors.New("ecflash: EC rejected flasher start")
	// ErrInvalidAddress is returned for a SPI address outside the 24 bit range.
	ErrInvalidAddress = errors.New("ecflash: invalid SPI address")
	// ErrInvalidLength is returned when an image is larger than the flash.
	ErrInvalidLength = errors.New("ecflash: image larger than flash size")
	// ErrAborted is returned when a ProgressFunc requests early termination
	// of a Read.
	ErrAborted = errors.New("ecflash: aborted")
)

// EraseMismatchError is returned when a post-erase region doesn't read back
// as all 0xFF.
type EraseMismatchError struct {
	Offset int
	Actual byte
}

func (e *EraseMismatchError) Error() string {
	return fmt.Sprintf("ecflash: erase verify failed at offset 0x%x: got 0x%02x, want 0xff", e.Offset, e.Actual)
}

// ProgramMismatchError is returned when a post-program readback doesn't
// match the image that was written.
type ProgramMismatchError struct {
	Offset   int
	Actual   byte
	Expected byte
}

func (e *ProgramMismatchError) Error() string {
	return fmt.Sprintf("ecflash: program verify failed at offset 0x%x: got 0x%02x, want 0x%02x", e.Offset, e.Actual, e.Expected)
}
