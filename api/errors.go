// File: api/errors.go
// Package api holds the public contracts of the zerows client engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error taxonomy shared by every layer of the library. Codes map one-to-one
// to the stable labels returned by ErrorString, so FFI wrappers and log
// pipelines can key on them without parsing Go error text.

package api

import "fmt"

// Code classifies every failure the engine can surface.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgs
	CodeMemory
	CodeNetwork
	CodeHandshake
	CodeProtocol
	CodeTimeout
	CodeClosed
	CodeBufferFull
	CodeNotReady
)

// Sentinel errors used across the library.
var (
	ErrInvalidArgs = &Error{Code: CodeInvalidArgs, Message: "invalid argument"}
	ErrMemory      = &Error{Code: CodeMemory, Message: "allocation failure"}
	ErrNetwork     = &Error{Code: CodeNetwork, Message: "network failure"}
	ErrHandshake   = &Error{Code: CodeHandshake, Message: "handshake failed"}
	ErrProtocol    = &Error{Code: CodeProtocol, Message: "protocol violation"}
	ErrTimeout     = &Error{Code: CodeTimeout, Message: "operation timeout"}
	ErrClosed      = &Error{Code: CodeClosed, Message: "connection closed"}
	ErrBufferFull  = &Error{Code: CodeBufferFull, Message: "buffer full"}
	ErrNotReady    = &Error{Code: CodeNotReady, Message: "not ready"}
)

// errorLabels holds the stable, short, lower-case labels in Code order.
var errorLabels = [...]string{
	"ok",
	"invalid args",
	"memory",
	"network",
	"handshake",
	"protocol",
	"timeout",
	"closed",
	"buffer full",
	"not ready",
}

// ErrorString returns the stable human label for a code.
// Unknown codes yield "unknown".
func ErrorString(c Code) string {
	if c >= 0 && int(c) < len(errorLabels) {
		return errorLabels[c]
	}
	return "unknown"
}

// Error is a structured error carrying a taxonomy code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so wrapped instances compare
// equal to the sentinels above.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds a coded error with a cause attached.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from any error produced by the library.
// Plain errors map to CodeNetwork, nil maps to CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeNetwork
}
