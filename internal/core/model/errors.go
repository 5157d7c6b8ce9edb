package model

import "errors"

// Sentinel errors surfaced by the core's fixed-capacity containers. Overflow
// conditions must always be reported, never silently dropped, §5/§9.
var (
	ErrBufferFull       = errors.New("buffer full")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrNotFound         = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ProtocolErrorKind is the §4.5/§7 error taxonomy for the protocol layer.
type ProtocolErrorKind string

const (
	ErrInvalidJSON       ProtocolErrorKind = "InvalidJson"
	ErrMessageTooLarge   ProtocolErrorKind = "MessageTooLarge"
	ErrSerialization     ProtocolErrorKind = "SerializationError"
	ErrInvalidCommandKnd ProtocolErrorKind = "InvalidCommand"
	ErrInvalidParameter  ProtocolErrorKind = "InvalidParameter"
	ErrBufferOverflow    ProtocolErrorKind = "BufferOverflow"
)

// ProtocolError carries a taxonomy kind alongside a human-readable reason.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Reason string
}

func (e *ProtocolError) Error() string {
	return string(e.Kind) + ": " + e.Reason
}

// NewProtocolError builds a ProtocolError of the given kind.
func NewProtocolError(kind ProtocolErrorKind, reason string) *ProtocolError {
	return &ProtocolError{Kind: kind, Reason: reason}
}
