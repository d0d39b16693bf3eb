package protocol

import "fmt"

// ErrorKind classifies a transport failure at the connection boundary.
// The underlying library surfaces inconsistent error shapes; everything
// is normalized to one of these before it reaches application code.
type ErrorKind string

const (
	// ErrKindDial covers handshake and connection-establishment failures.
	ErrKindDial ErrorKind = "dial"

	// ErrKindClosed covers reads/writes on a closed connection,
	// including abnormal peer closure.
	ErrKindClosed ErrorKind = "closed"

	// ErrKindStale marks a connection that stopped responding to pings.
	ErrKindStale ErrorKind = "stale"

	// ErrKindProtocol covers malformed frames.
	ErrKindProtocol ErrorKind = "protocol"

	// ErrKindWrite covers send failures on an open connection.
	ErrKindWrite ErrorKind = "write"
)

// Error is the single structured error shape crossing the connection
// boundary.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewError wraps an underlying error into a normalized Error.
func NewError(kind ErrorKind, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Error{Kind: kind, Detail: detail}
}
