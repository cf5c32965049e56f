// Package ws provides the nhooyr.io/websocket transport backend.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/omochice/rtm-client/internal/transport"
	"nhooyr.io/websocket"
)

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
	peerClosed atomic.Bool
}

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (transport.Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			c.peerClosed.Store(true)
			return transport.Frame{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return transport.Frame{}, fmt.Errorf("%w: %v", io.ErrUnexpectedEOF, err)
		}
		return transport.Frame{}, err
	}
	return transport.Frame{Type: fromMessageType(typ), Data: data}, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, f transport.Frame) error {
	return c.conn.Write(ctx, toMessageType(f.Type), f.Data)
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if c.peerClosed.Load() {
		return nil
	}
	return err
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer dials with nhooyr.io/websocket.
type Dialer struct {
	opts transport.Options
}

// NewDialer creates a Dialer.
func NewDialer(opts transport.Options) *Dialer {
	return &Dialer{opts: opts}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.SetReadLimit(d.opts.Limit())

	addr := ""
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		addr = resp.Request.URL.Host
	}
	return NewConnWithAddr(conn, addr), nil
}

func fromMessageType(typ websocket.MessageType) transport.MessageType {
	if typ == websocket.MessageBinary {
		return transport.MessageBinary
	}
	return transport.MessageText
}

func toMessageType(mt transport.MessageType) websocket.MessageType {
	if mt == transport.MessageBinary {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

var _ transport.Conn = (*Conn)(nil)
