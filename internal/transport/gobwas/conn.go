// Package gobwas provides the gobwas/ws transport backend.
package gobwas

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/rtm-client/internal/transport"
)

const closeTimeout = 5 * time.Second

// Conn wraps net.Conn for WebSocket connections using gobwas/ws.
type Conn struct {
	conn   net.Conn
	reader *wsutil.Reader
	limit  int64

	writeMu sync.Mutex
	closed  bool
}

// NewConn wraps an upgraded client-side connection. br is the buffered
// reader returned by the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader, limit int64) *Conn {
	c := &Conn{conn: conn, limit: limit}

	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		MaxFrameSize:   limit,
		OnIntermediate: wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateClientSide),
	}
	return c
}

// Read implements transport.Conn.
// Control frames are answered inline; a close frame yields io.EOF.
func (c *Conn) Read(ctx context.Context) (transport.Frame, error) {
	handle := c.reader.OnIntermediate
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return transport.Frame{}, c.mapErr(err)
		}

		if hdr.OpCode.IsControl() {
			if err := handle(hdr, c.reader); err != nil {
				return transport.Frame{}, c.mapErr(err)
			}
			continue
		}

		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := c.reader.Discard(); err != nil {
				return transport.Frame{}, c.mapErr(err)
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(c.reader, c.limit+1))
		if err != nil {
			return transport.Frame{}, c.mapErr(err)
		}
		if int64(len(data)) > c.limit {
			return transport.Frame{}, fmt.Errorf("message exceeds read limit of %d bytes", c.limit)
		}

		typ := transport.MessageText
		if hdr.OpCode == ws.OpBinary {
			typ = transport.MessageBinary
		}
		return transport.Frame{Type: typ, Data: data}, nil
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, f transport.Frame) error {
	op := ws.OpText
	if f.Type == transport.MessageBinary {
		op = ws.OpBinary
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientMessage(c.conn, op, f.Data)
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	if !c.closed {
		c.closed = true
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
	}
	c.writeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) mapErr(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// lockedWriter serialises control frame replies with data writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// Dialer dials with gobwas/ws.
type Dialer struct {
	opts   transport.Options
	dialer ws.Dialer
}

// NewDialer creates a Dialer.
func NewDialer(opts transport.Options) *Dialer {
	d := ws.Dialer{}
	if len(opts.Header) > 0 {
		d.Header = ws.HandshakeHeaderHTTP(opts.Header)
	}
	return &Dialer{opts: opts, dialer: d}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	conn, br, _, err := d.dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, br, d.opts.Limit()), nil
}

var _ transport.Conn = (*Conn)(nil)
