// Package gorilla provides the gorilla/websocket transport backend.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/rtm-client/internal/transport"
)

const closeTimeout = 5 * time.Second

// Conn adapts gorilla/websocket to transport.Conn.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewConn wraps a websocket.Conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read implements transport.Conn.
// gorilla has no context support; cancellation is achieved with Close.
func (c *Conn) Read(ctx context.Context) (transport.Frame, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
			return transport.Frame{}, io.EOF
		}
		return transport.Frame{}, err
	}

	typ := transport.MessageText
	if messageType == websocket.BinaryMessage {
		typ = transport.MessageBinary
	}
	return transport.Frame{Type: typ, Data: data}, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, f transport.Frame) error {
	messageType := websocket.TextMessage
	if f.Type == transport.MessageBinary {
		messageType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(messageType, f.Data)
}

// Close implements transport.Conn.
// The close frame is best effort: the peer may already be gone.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials with gorilla/websocket.
type Dialer struct {
	opts   transport.Options
	dialer *websocket.Dialer
}

// NewDialer creates a Dialer.
func NewDialer(opts transport.Options) *Dialer {
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		},
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.SetReadLimit(d.opts.Limit())
	return NewConn(conn), nil
}

var _ transport.Conn = (*Conn)(nil)
