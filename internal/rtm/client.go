// Package rtm implements the real-time event client: a single-use
// connection state machine that reads event frames from a websocket,
// decodes them and fans them out to per-kind topics.
//
// The lifecycle is Idle → Connecting → Open → Closing → Closed, with Failed
// reachable from Connecting, Open and Closing. Closed and Failed are
// terminal. A Client never reconnects; the owner creates a new Client with
// a fresh Session when it wants to.
package rtm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/rtm-client/internal/hub"
	"github.com/omochice/rtm-client/internal/transport"
	"github.com/omochice/rtm-client/internal/transport/ws"
	"github.com/omochice/rtm-client/pkg/protocol"
	"golang.org/x/time/rate"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultDiagnosticEvery  = 100 * time.Millisecond
	defaultDiagnosticBurst  = 20
)

// Client is the connection state machine.
//
// Every state transition and the connection handle are guarded by one
// mutex. Data events are published only from the read goroutine, so
// subscribers observe them in wire order.
type Client struct {
	*Registry

	id               string
	session          Session
	dialer           transport.Dialer
	logger           *slog.Logger
	metrics          *Metrics
	limiter          *rate.Limiter
	handshakeTimeout time.Duration
	dispatcher       *Dispatcher

	mu        sync.Mutex
	state     State
	conn      transport.Conn
	cancel    context.CancelFunc
	cancelled bool
	stopWatch func() bool
	err       error
	done      chan struct{}
	doneOnce  sync.Once

	// trace observes every transition; set by tests only.
	trace func(from, to State)
}

// New creates an idle client bound to session.
func New(session Session, opts ...Option) *Client {
	c := &Client{
		id:               uuid.NewString(),
		session:          session,
		handshakeTimeout: defaultHandshakeTimeout,
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = ws.NewDialer(transport.Options{})
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(defaultDiagnosticEvery), defaultDiagnosticBurst)
	}
	c.logger = c.logger.With("client", c.id)
	c.Registry = NewRegistry(c.onFault)
	c.dispatcher = NewDispatcher(c.Registry)
	c.metrics.State.Set(float64(StateIdle))

	return c
}

// ID returns the identifier used in log lines.
func (c *Client) ID() string {
	return c.id
}

// Session returns the connection target.
func (c *Client) Session() Session {
	return c.session
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure cause once the client is in StateFailed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed after the client reaches a terminal state and the
// corresponding signal has been published.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start begins the opening handshake in the background and returns
// immediately. It is valid only once, from StateIdle. Cancelling ctx later
// has the same effect as calling Close.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return &StateError{Op: "start", State: c.state}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.transitionLocked(StateConnecting)
	c.stopWatch = context.AfterFunc(ctx, func() {
		_ = c.Close()
	})

	go c.run(runCtx)
	return nil
}

// Close shuts the client down.
//
// From StateIdle it moves straight to StateClosed. From StateConnecting it
// cancels the handshake; the client then moves to StateClosed without
// entering StateOpen. From StateOpen it performs the close handshake,
// publishing Closing then Closed. In any other state it does nothing.
// A transport error during the handshake moves the client to StateFailed
// and is returned.
func (c *Client) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.closeLocked()
		c.mu.Unlock()
		c.reportClosed(CloseInfo{})
		return nil

	case StateConnecting:
		c.cancelled = true
		cancel := c.cancel
		c.mu.Unlock()
		c.logger.Debug("cancelling handshake")
		cancel()
		return nil

	case StateOpen:
		c.transitionLocked(StateClosing)
		conn := c.conn
		c.mu.Unlock()

		c.logger.Info("closing connection", "initiator", "client")
		c.Closing().Publish(CloseInfo{})
		err := conn.Close()

		c.mu.Lock()
		if c.state != StateClosing {
			c.mu.Unlock()
			return nil
		}
		if err != nil {
			cause := fmt.Errorf("%w: %w", ErrTransport, err)
			c.failLocked(cause)
			c.mu.Unlock()
			c.reportFailure(cause)
			return cause
		}
		c.closeLocked()
		c.mu.Unlock()
		c.reportClosed(CloseInfo{})
		return nil

	default:
		c.mu.Unlock()
		return nil
	}
}

func (c *Client) run(ctx context.Context) {
	dialCtx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	c.logger.Info("connecting", "host", c.session.Host())
	conn, err := c.dialer.Dial(dialCtx, c.session.URL())

	c.mu.Lock()
	if c.cancelled {
		c.closeLocked()
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		c.metrics.Connections.WithLabelValues("cancelled").Inc()
		c.logger.Info("handshake cancelled")
		c.reportClosed(CloseInfo{})
		return
	}
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrHandshake, err)
		c.failLocked(cause)
		c.mu.Unlock()
		c.metrics.Connections.WithLabelValues("failed").Inc()
		c.reportFailure(cause)
		return
	}
	c.conn = conn
	c.transitionLocked(StateOpen)
	c.mu.Unlock()

	c.metrics.Connections.WithLabelValues("open").Inc()
	c.logger.Info("connected", "remote", conn.RemoteAddr())

	c.readLoop(ctx, conn)
}

// readLoop is the single reader of conn. Dispatch of frame N completes
// before frame N+1 is read.
func (c *Client) readLoop(ctx context.Context, conn transport.Conn) {
	for {
		f, err := conn.Read(ctx)
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		if !c.handleFrame(f) {
			return
		}
	}
}

func (c *Client) handleReadError(conn transport.Conn, err error) {
	c.mu.Lock()
	if c.state != StateOpen {
		// The owner is closing; Close reports the outcome.
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("read loop stopped", "state", state.String(), "error", err)
		return
	}

	if !errors.Is(err, io.EOF) {
		cause := fmt.Errorf("%w: %w", ErrTransport, err)
		c.failLocked(cause)
		c.mu.Unlock()
		_ = conn.Close()
		c.reportFailure(cause)
		return
	}

	c.transitionLocked(StateClosing)
	c.mu.Unlock()

	c.logger.Info("closing connection", "initiator", "server")
	c.Closing().Publish(CloseInfo{ByPeer: true})
	if cerr := conn.Close(); cerr != nil {
		c.logger.Debug("releasing closed connection", "error", cerr)
	}

	c.mu.Lock()
	if c.state != StateClosing {
		c.mu.Unlock()
		return
	}
	c.closeLocked()
	c.mu.Unlock()
	c.reportClosed(CloseInfo{ByPeer: true})
}

// handleFrame decodes and dispatches one frame. It returns false once the
// client has left StateOpen; the frame is then discarded.
func (c *Client) handleFrame(f transport.Frame) bool {
	if !c.isOpen() {
		return false
	}
	c.metrics.FramesReceived.Inc()

	if f.Type != transport.MessageText {
		c.metrics.FramesDropped.WithLabelValues("binary").Inc()
		c.diagnose(slog.LevelWarn, "dropping non-text frame", "type", f.Type.String(), "size", len(f.Data))
		return true
	}

	var ev protocol.Event
	if err := ev.Decode(f.Data); err != nil {
		reason := "malformed"
		if errors.Is(err, protocol.ErrMissingKind) {
			reason = "missing_kind"
		}
		c.metrics.FramesDropped.WithLabelValues(reason).Inc()
		c.diagnose(slog.LevelWarn, "dropping undecodable frame", "reason", reason, "error", err)
		return true
	}

	// Close may have started while the frame was decoded.
	if !c.isOpen() {
		c.metrics.FramesDropped.WithLabelValues("closing").Inc()
		return false
	}
	if !c.dispatcher.Dispatch(ev) {
		c.metrics.UnknownKinds.Inc()
		c.diagnose(slog.LevelDebug, "ignoring unknown event kind", "kind", ev.Kind.String())
		return true
	}
	c.metrics.EventsDispatched.WithLabelValues(ev.Kind.String()).Inc()
	return true
}

func (c *Client) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// diagnose logs a per-frame anomaly unless the rate limiter suppresses it.
func (c *Client) diagnose(level slog.Level, msg string, args ...any) {
	if !c.limiter.Allow() {
		c.metrics.DiagnosticsSuppressed.Inc()
		return
	}
	c.logger.Log(context.Background(), level, msg, args...)
}

func (c *Client) onFault(f hub.Fault) {
	c.metrics.SubscriberFaults.WithLabelValues(f.Topic).Inc()
	c.logger.Warn("subscriber failed", "topic", f.Topic, "subscription", f.Subscription, "error", f.Err)
}

func (c *Client) failLocked(cause error) {
	c.err = cause
	c.conn = nil
	c.transitionLocked(StateFailed)
}

func (c *Client) closeLocked() {
	c.conn = nil
	c.transitionLocked(StateClosed)
}

// reportFailure publishes the error signal. It runs exactly once, after the
// transition to StateFailed.
func (c *Client) reportFailure(cause error) {
	c.logger.Error("connection failed", "error", cause)
	c.Errors().Publish(cause)
	c.finish()
}

// reportClosed publishes the closed signal after the transition to
// StateClosed.
func (c *Client) reportClosed(info CloseInfo) {
	c.logger.Info("connection closed", "by_peer", info.ByPeer)
	c.Closed().Publish(info)
	c.finish()
}

func (c *Client) transitionLocked(to State) {
	from := c.state
	c.state = to
	c.metrics.State.Set(float64(to))
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
	if c.trace != nil {
		c.trace(from, to)
	}
}

// finish releases background resources once a terminal state is reached.
func (c *Client) finish() {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		cancel, stopWatch := c.cancel, c.stopWatch
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if stopWatch != nil {
			stopWatch()
		}
		close(c.done)
	})
}
