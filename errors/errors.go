// Package errors defines the closed result taxonomy returned by every
// operation in this module, together with a chainable wrapper type that
// carries an optional message and underlying cause.
package errors

import "fmt"

// Code is a closed enumeration of result values. Every exported operation
// in this module returns either nil or an error satisfying errors.Is
// against one of these codes.
type Code int

const (
	// Ok exists so Code has a defined zero value for logging and
	// table-driven tests; it is never itself returned as an error.
	Ok Code = iota
	DiskError
	IntError
	NotReady
	NoFile
	NoPath
	InvalidName
	Denied
	Exist
	InvalidObject
	WriteProtected
	InvalidDrive
	NotEnabled
	NoFilesystem
	Timeout
	Locked
	NotEnoughCore
	TooManyOpenFiles
	InvalidParameter
	FatError
	FatFull
	FatClusterUnder
	FatClusterOver
)

var names = map[Code]string{
	Ok:               "ok",
	DiskError:        "disk I/O error",
	IntError:         "internal consistency error",
	NotReady:         "drive not ready",
	NoFile:           "no such file",
	NoPath:           "no such path",
	InvalidName:      "invalid name",
	Denied:           "access denied",
	Exist:            "already exists",
	InvalidObject:    "invalid object handle",
	WriteProtected:   "write protected",
	InvalidDrive:     "invalid drive number",
	NotEnabled:       "volume not enabled",
	NoFilesystem:     "no filesystem found",
	Timeout:          "timed out waiting for volume access",
	Locked:           "locked by sharing policy",
	NotEnoughCore:    "not enough work area",
	TooManyOpenFiles: "too many open files",
	InvalidParameter: "invalid parameter",
	FatError:         "FAT chain corrupted",
	FatFull:          "FAT is full",
	FatClusterUnder:  "cluster index below valid range",
	FatClusterOver:   "cluster index above valid range",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error implements the error interface so a bare Code can be returned and
// compared with errors.Is without further wrapping.
func (c Code) Error() string {
	return c.String()
}

// Err chains a Code with an optional descriptive message and cause,
// mirroring the teacher's customDriverError/DriverError split but keyed to
// this module's own closed enum rather than POSIX errno names.
type Err interface {
	error
	Code() Code
	WithMessage(message string) Err
	WrapError(cause error) Err
	Unwrap() error
}

type fatError struct {
	code    Code
	message string
	cause   error
}

// New returns an Err for the given code with no extra message.
func New(code Code) Err {
	return fatError{code: code}
}

// Newf returns an Err for the given code with a formatted message.
func Newf(code Code, format string, args ...interface{}) Err {
	return fatError{code: code, message: fmt.Sprintf(format, args...)}
}

func (e fatError) Code() Code { return e.code }

func (e fatError) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code.String(), e.message)
}

func (e fatError) WithMessage(message string) Err {
	return fatError{code: e.code, message: message, cause: e}
}

func (e fatError) WrapError(cause error) Err {
	return fatError{code: e.code, message: e.message, cause: cause}
}

func (e fatError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, someCode) work against both bare Codes and
// wrapped fatError values.
func (e fatError) Is(target error) bool {
	if code, ok := target.(Code); ok {
		return e.code == code
	}
	if other, ok := target.(fatError); ok {
		return e.code == other.code
	}
	return false
}

// Is reports whether err was produced for the given Code, whether bare or
// wrapped with a message/cause.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	if c, ok := err.(Code); ok {
		return c == code
	}
	if fe, ok := err.(fatError); ok {
		return fe.code == code
	}
	type causer interface{ Unwrap() error }
	if c, ok := err.(causer); ok {
		return Is(c.Unwrap(), code)
	}
	return false
}
