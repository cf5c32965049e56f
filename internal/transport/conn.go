// Package transport defines the connection abstraction the event client runs
// on. Backends live in sub-packages, one per websocket library.
package transport

import (
	"context"
	"net/http"
)

// MessageType is the websocket data frame type.
type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

// String returns a human readable frame type.
func (mt MessageType) String() string {
	switch mt {
	case MessageText:
		return "TEXT"
	case MessageBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Frame is one data message read from or written to a connection.
type Frame struct {
	Type MessageType
	Data []byte
}

// Conn abstracts one established websocket connection.
// A Conn supports one reader at a time; Write and Close may be called
// concurrently with Read.
type Conn interface {
	// Read reads the next data frame. Control frames are handled internally.
	// Returns io.EOF once the peer has closed the connection with a close
	// frame and the close handshake is complete.
	Read(ctx context.Context) (Frame, error)

	// Write sends a single data frame.
	Write(ctx context.Context, f Frame) error

	// Close performs the client side of the close handshake and releases the
	// connection. After Read has returned io.EOF it only releases resources.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// DefaultReadLimit bounds the size of a single inbound message.
const DefaultReadLimit int64 = 1 << 20

// Options configures a backend dialer.
type Options struct {
	// ReadLimit is the maximum size of an inbound message in bytes.
	// Zero means DefaultReadLimit.
	ReadLimit int64

	// Header is sent with the opening handshake.
	Header http.Header
}

// Limit returns the effective read limit.
func (o Options) Limit() int64 {
	if o.ReadLimit <= 0 {
		return DefaultReadLimit
	}
	return o.ReadLimit
}
