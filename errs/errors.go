// Package errs classifies the ways a session's operations can fail,
// per the flat, inheritance-free taxonomy in spec §7: a value may be
// tagged by more than one kind (a CommandError is also, sometimes, an
// authentication or permission error), so this is a set of concrete
// types plus helpers rather than a single enum.
package errs

import (
	"errors"
	"fmt"
)

// ConnectionError covers an unknown protocol byte, an unexpected EOF,
// or a socket syscall failure. It closes the stream before being
// re-signaled.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("redis: connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ConnectTimeoutError is raised when the connect or TLS-handshake
// deadline elapses before the transport becomes usable.
type ConnectTimeoutError struct {
	Err error
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("redis: connect timeout: %v", e.Err)
}
func (e *ConnectTimeoutError) Unwrap() error { return e.Err }

// ReadTimeoutError is raised when a read's deadline elapses before a
// terminator or the requested byte count arrives.
type ReadTimeoutError struct {
	Err error
}

func (e *ReadTimeoutError) Error() string { return fmt.Sprintf("redis: read timeout: %v", e.Err) }
func (e *ReadTimeoutError) Unwrap() error { return e.Err }

// WriteTimeoutError is raised when a write's deadline elapses before
// the bytes are accepted by the transport.
type WriteTimeoutError struct {
	Err error
}

func (e *WriteTimeoutError) Error() string { return fmt.Sprintf("redis: write timeout: %v", e.Err) }
func (e *WriteTimeoutError) Unwrap() error { return e.Err }

// authenticationCodes and permissionCodes sub-classify a CommandError
// by its server-reported code prefix, the way protocol/commands.go
// drives command behavior from a lookup table instead of a chain of
// conditionals.
var (
	authenticationCodes = map[string]bool{
		"WRONGPASS": true,
		"NOAUTH":    true,
	}
	permissionCodes = map[string]bool{
		"NOPERM": true,
	}
)

// CommandError is a server-reported `-`/`!` frame, decoded as a value
// by protocol.Decoder and raised as an error by a Session once it
// decides the value should not be returned to the caller.
type CommandError struct {
	CodePrefix string
	Message    string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return e.CodePrefix
	}
	return fmt.Sprintf("%s %s", e.CodePrefix, e.Message)
}

// IsAuthentication reports whether this command error's code prefix
// (e.g. WRONGPASS, NOAUTH) denotes an authentication failure.
func (e *CommandError) IsAuthentication() bool { return authenticationCodes[e.CodePrefix] }

// IsPermission reports whether this command error's code prefix (e.g.
// NOPERM) denotes a permission failure.
func (e *CommandError) IsPermission() bool { return permissionCodes[e.CodePrefix] }

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

// IsTimeout reports whether err is, or wraps, any of the three timeout
// kinds (connect, read, write).
func IsTimeout(err error) bool {
	var ct *ConnectTimeoutError
	var rt *ReadTimeoutError
	var wt *WriteTimeoutError
	return errors.As(err, &ct) || errors.As(err, &rt) || errors.As(err, &wt)
}

// AsCommandError extracts a *CommandError from err, if any, following
// wrapped errors the way errors.As does.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
