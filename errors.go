package atapio

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Errno is a POSIX-style error code attached to every [DriverError] so that
// callers exposing the driver through a syscall-like surface can map failures
// without string matching.
type Errno int

const (
	EOK Errno = iota
	EINVAL
	EIO
	ENODEV
	ENOTSUP
	ETIMEDOUT
)

var errorMessagesByCode = map[Errno]string{
	EOK:       "Success",
	EINVAL:    "Invalid argument",
	EIO:       "Input/output error",
	ENODEV:    "No such device",
	ENOTSUP:   "Operation not supported",
	ETIMEDOUT: "Connection timed out",
}

// StrError returns the default message for an error code.
func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}

type DriverError interface {
	error
	Errno() Errno
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type rootDriverError Errno

// ErrDriveNotPresent is returned when I/O is attempted on a position where
// identification found no drive. Identification itself never returns it; an
// absent drive is recorded as DriveInfo.Detected == false.
var ErrDriveNotPresent = rootDriverError(ENODEV).WithMessage("Drive not present")

// ErrIdentifyTimeout means the busy bit never cleared after IDENTIFY. This is
// a hardware problem and is distinct from an empty position.
var ErrIdentifyTimeout = rootDriverError(ETIMEDOUT).WithMessage("Drive identification timed out")

// ErrInvalidArgument rejects a request before any register is touched.
var ErrInvalidArgument = rootDriverError(EINVAL).WithMessage("Invalid argument")

// ErrDriveFault means the drive reported ERR or DF, or stopped responding, in
// the middle of a sector command.
var ErrDriveFault = rootDriverError(EIO).WithMessage("Drive fault")

var ErrUnsupportedAddressingMode = rootDriverError(ENOTSUP).WithMessage("Unsupported addressing mode")

func (e rootDriverError) Error() string {
	return StrError(Errno(e))
}

func (e rootDriverError) Errno() Errno {
	return Errno(e)
}

func (e rootDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		errno:         Errno(e),
		message:       message,
		originalError: e,
	}
}

func (e rootDriverError) Wrap(err error) DriverError {
	return customDriverError{
		errno:         Errno(e),
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) Errno() Errno {
	return e.errno
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
