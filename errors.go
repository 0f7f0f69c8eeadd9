package avload

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error taxonomy. Typed errors below wrap one of these so callers can use
// errors.Is regardless of the detail carried.
var (
	ErrLibraryNotFound           = errors.New("avload: library not found")
	ErrMandatorySymbolMissing    = errors.New("avload: mandatory symbol missing")
	ErrUnsupportedVersion        = errors.New("avload: unsupported version")
	ErrVersionCombinationUnknown = errors.New("avload: version combination unknown")
	ErrMalformedNativeData       = errors.New("avload: malformed native data")

	ErrNullRecord    = errors.New("avload: null record")
	ErrNotFound      = errors.New("avload: not found")
	ErrNotLoaded     = errors.New("avload: libraries not loaded")
	ErrRuntimeClosed = errors.New("avload: runtime closed")
	ErrNotSupported  = errors.New("avload: not supported by loaded library")
)

// LibraryError reports that no candidate path for a module could be opened.
type LibraryError struct {
	Module Module
	Tried  int
	Last   string // last loader error text, if any
}

func (e *LibraryError) Error() string {
	if e.Last != "" {
		return fmt.Sprintf("%s: no candidate opened (%d tried, last: %s)", e.Module, e.Tried, e.Last)
	}
	return fmt.Sprintf("%s: no candidate opened (%d tried)", e.Module, e.Tried)
}

func (e *LibraryError) Unwrap() error { return ErrLibraryNotFound }

// SymbolError lists the mandatory symbols a module failed to resolve.
type SymbolError struct {
	Module  Module
	Symbols []string
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s: mandatory symbols missing: %s", e.Module, strings.Join(e.Symbols, ", "))
}

func (e *SymbolError) Unwrap() error { return ErrMandatorySymbolMissing }

// VersionError reports a module whose major version is outside every
// supported range.
type VersionError struct {
	Module  Module
	Version Version
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: version %s outside supported range %s", e.Module, e.Version, supportedRanges[e.Module])
}

func (e *VersionError) Unwrap() error { return ErrUnsupportedVersion }

// DecodeError is a failure to decode one native record. It is local to the
// call that produced it.
type DecodeError struct {
	Entity string
	Major  int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (major %d): %v", e.Entity, e.Major, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FFmpeg error codes used by the wrappers. AVERROR(EAGAIN) follows the
// platform errno: 11 on linux, 35 on darwin.
const (
	averrorEOF    = -0x20464F45 // FFERRTAG('E','O','F',' ')
	averrorEAGAIN = -int(syscall.EAGAIN)
)

var (
	ErrEOF   = &AVError{Code: averrorEOF, Msg: "end of file"}
	ErrAgain = &AVError{Code: averrorEAGAIN, Msg: "resource temporarily unavailable"}
)

// AVError wraps a negative return code from a native call.
type AVError struct {
	Code int
	Op   string
	Msg  string
}

func (e *AVError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("averror %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: averror %d: %s", e.Op, e.Code, e.Msg)
}

// Is matches on the code only, so errors.Is(err, ErrEOF) works for errors
// produced by any operation.
func (e *AVError) Is(target error) bool {
	t, ok := target.(*AVError)
	return ok && t.Code == e.Code
}
