package rtm

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/rtm-client/internal/transport"
)

type readResult struct {
	frame transport.Frame
	err   error
}

func text(s string) readResult {
	return readResult{frame: transport.Frame{Type: transport.MessageText, Data: []byte(s)}}
}

func binary(b []byte) readResult {
	return readResult{frame: transport.Frame{Type: transport.MessageBinary, Data: b}}
}

func failure(err error) readResult {
	return readResult{err: err}
}

// fakeConn is a scripted transport.Conn.
type fakeConn struct {
	reads      chan readResult
	closed     chan struct{}
	closeOnce  sync.Once
	closeErr   error
	closeCalls atomic.Int32
	readCalls  atomic.Int32

	// onFrame runs on the reader before a scripted result is returned.
	// Set it before the client starts.
	onFrame func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(results ...readResult) {
	for _, r := range results {
		c.reads <- r
	}
}

func (c *fakeConn) Read(ctx context.Context) (transport.Frame, error) {
	c.readCalls.Add(1)
	select {
	case <-c.closed:
		return transport.Frame{}, net.ErrClosed
	default:
	}
	select {
	case r := <-c.reads:
		if c.onFrame != nil {
			c.onFrame()
		}
		return r.frame, r.err
	case <-c.closed:
		return transport.Frame{}, net.ErrClosed
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, f transport.Frame) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return c.closeErr
}

func (c *fakeConn) RemoteAddr() string {
	return "fake:0"
}

var _ transport.Conn = (*fakeConn)(nil)

// fakeDialer hands out conn, or fails with err. When gate is set, Dial
// blocks until the gate is closed regardless of the context, to model a
// handshake that completes after cancellation was requested.
type fakeDialer struct {
	conn  *fakeConn
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// recorder is a slog.Handler capturing every record.
type recorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (r *recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec.Clone())
	return nil
}

func (r *recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recorder) WithGroup(string) slog.Handler      { return r }

func (r *recorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if strings.Contains(rec.Message, substr) {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, d transport.Dialer, opts ...Option) (*Client, *recorder) {
	t.Helper()
	session, err := NewSession("wss://rtm.example.test/websocket/ticket")
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	rec := &recorder{}
	base := []Option{WithDialer(d), WithLogger(slog.New(rec))}
	return New(session, append(base, opts...)...), rec
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for terminal state, state = %s", c.State())
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %s, state = %s", want, c.State())
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	var zero T
	return zero
}
