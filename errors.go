package proccom

import (
	"errors"
	"fmt"
)

// Op names the operation that produced an *Error.
type Op string

const (
	OpInitialize Op = "initialize"
	OpCreate     Op = "create"
	OpOption     Op = "setsockopt"
	OpBind       Op = "bind"
	OpListen     Op = "listen"
	OpAccept     Op = "accept"
	OpConnect    Op = "connect"
	OpSend       Op = "send"
	OpReceive    Op = "receive"
	OpShutdown   Op = "shutdown"
	OpLocalAddr  Op = "getsockname"
)

// Per-operation sentinels. Every *Error matches exactly one of these.
var (
	ErrInit         = errors.New("socket subsystem startup failed")
	ErrSocketCreate = errors.New("socket create failed")
	ErrSocketOption = errors.New("socket option failed")
	ErrBind         = errors.New("bind failed")
	ErrListen       = errors.New("listen failed")
	ErrAccept       = errors.New("accept failed")
	ErrConnect      = errors.New("connect failed")
	ErrSend         = errors.New("send failed")
	ErrReceive      = errors.New("receive failed")
	ErrShutdown     = errors.New("shutdown failed")
	ErrLocalAddr    = errors.New("local address lookup failed")
)

// Causes that do not come from the platform.
var (
	ErrInvalidAddress = errors.New("invalid IPv4 address")
	ErrClosed         = errors.New("use of closed socket")
	ErrNotInitialized = errors.New("socket subsystem not initialized")
)

func (op Op) sentinel() error {
	switch op {
	case OpInitialize:
		return ErrInit
	case OpCreate:
		return ErrSocketCreate
	case OpOption:
		return ErrSocketOption
	case OpBind:
		return ErrBind
	case OpListen:
		return ErrListen
	case OpAccept:
		return ErrAccept
	case OpConnect:
		return ErrConnect
	case OpSend:
		return ErrSend
	case OpReceive:
		return ErrReceive
	case OpShutdown:
		return ErrShutdown
	case OpLocalAddr:
		return ErrLocalAddr
	}
	return nil
}

// ErrorCode is the platform-independent classification of a socket failure.
type ErrorCode uint8

const (
	CodeOK ErrorCode = iota
	CodeUnknown
	CodeAccessDenied
	CodeNotSupported
	CodeInvalidArgument
	CodeOutOfMemory
	CodeTimeout
	CodeWouldBlock
	CodeInvalidState
	CodeNewSocketLimit
	CodeAddressNotBindable
	CodeAddressInUse
	CodeRemoteUnreachable
	CodeConnectionRefused
	CodeConnectionReset
	CodeConnectionAborted
	CodeBrokenPipe
	CodeBadHandle
	CodeSubsystemUnavailable
)

var codeNames = [...]string{
	CodeOK:                   "ok",
	CodeUnknown:              "unknown",
	CodeAccessDenied:         "access denied",
	CodeNotSupported:         "not supported",
	CodeInvalidArgument:      "invalid argument",
	CodeOutOfMemory:          "out of memory",
	CodeTimeout:              "timeout",
	CodeWouldBlock:           "would block",
	CodeInvalidState:         "invalid state",
	CodeNewSocketLimit:       "socket limit reached",
	CodeAddressNotBindable:   "address not bindable",
	CodeAddressInUse:         "address in use",
	CodeRemoteUnreachable:    "remote unreachable",
	CodeConnectionRefused:    "connection refused",
	CodeConnectionReset:      "connection reset",
	CodeConnectionAborted:    "connection aborted",
	CodeBrokenPipe:           "broken pipe",
	CodeBadHandle:            "bad handle",
	CodeSubsystemUnavailable: "subsystem unavailable",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// Error is returned by every failing operation in this package.
//
// errors.Is matches both the operation sentinel (ErrBind, ErrSend, ...) and
// the cause, so callers can test for ErrBind and for a specific errno such
// as unix.EADDRINUSE on the same value.
type Error struct {
	Op   Op
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("proccom: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("proccom: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Op.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CodeOf returns the ErrorCode carried by err, CodeOK for nil and
// CodeUnknown for errors that did not come from this package.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// opError wraps a platform error, normalizing its code.
func opError(op Op, err error) *Error {
	return &Error{Op: op, Code: mapOsError(err), Err: err}
}

func mapOsError(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrClosed):
		return CodeBadHandle
	case errors.Is(err, ErrInvalidAddress):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotInitialized):
		return CodeInvalidState
	case errors.Is(err, errors.ErrUnsupported):
		return CodeNotSupported
	}
	return mapErrno(err)
}
