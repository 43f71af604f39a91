package adb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mobile-next/adbctl/adb/wire"
)

// Err is the error returned by Server and Device operations.
type Err struct {
	// Code is the high-level "type" of error.
	Code ErrCode
	// Message is a human-readable description of the error.
	Message string
	// Details is optional auxiliary data.
	Details interface{}
	// Cause is optional, and points to the more specific error that caused this one.
	Cause error
}

var _ error = &Err{}

type ErrCode byte

const (
	AssertionError ErrCode = iota
	ParseError
	// The server was not available on the requested address and could not be started.
	ServerNotAvailable
	// General network error communicating with the server.
	NetworkError
	// The server returned an error message.
	AdbError
	// The server returned a "device not found" error.
	DeviceNotFound
)

func (c ErrCode) String() string {
	switch c {
	case AssertionError:
		return "AssertionError"
	case ParseError:
		return "ParseError"
	case ServerNotAvailable:
		return "ServerNotAvailable"
	case NetworkError:
		return "NetworkError"
	case AdbError:
		return "AdbError"
	case DeviceNotFound:
		return "DeviceNotFound"
	default:
		return fmt.Sprintf("ErrCode(%d)", byte(c))
	}
}

func Errorf(code ErrCode, format string, args ...interface{}) error {
	return &Err{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

/*
WrapErrorf returns an *Err that wraps cause with a code and a message.

If cause is nil, returns nil, so you can use it like

	return WrapErrorf(DoSomethingDangerous(), NetworkError, "well that didn't work")
*/
func WrapErrorf(cause error, code ErrCode, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Err{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func (err *Err) Error() string {
	msg := fmt.Sprintf("%s: %s", err.Code, err.Message)
	if err.Details != nil {
		msg = fmt.Sprintf("%s (%+v)", msg, err.Details)
	}
	if err.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, err.Cause)
	}
	return msg
}

func (err *Err) Unwrap() error {
	return err.Cause
}

// HasErrCode reports whether err is an *Err with the given code anywhere in its chain.
func HasErrCode(err error, code ErrCode) bool {
	var e *Err
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// StartupError is returned when no candidate adb binary brings the server up,
// or when an unreachable server is not on this machine.
type StartupError struct {
	Address string
	Tried   []string
	Cause   error
}

func (e *StartupError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("adb server at %s is not available: %v", e.Address, e.Cause)
	}
	return fmt.Sprintf("could not start adb server at %s (tried %s): %v",
		e.Address, strings.Join(e.Tried, ", "), e.Cause)
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}

// isNotFound reports whether err is a server failure saying the target is missing.
func isNotFound(err error) bool {
	var perr *wire.ProtocolError
	return errors.As(err, &perr) && strings.Contains(perr.Reason, "not found")
}
