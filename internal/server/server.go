// Package server implements a fake event feed for development and tests.
//
// It serves a bootstrap endpoint that hands out the websocket URL and a
// websocket endpoint that greets every connection with a hello event and
// then streams whatever is broadcast.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/omochice/rtm-client/internal/hub"
	"github.com/omochice/rtm-client/internal/transport"
	"github.com/omochice/rtm-client/internal/transport/ws"
	"github.com/omochice/rtm-client/pkg/protocol"
	"nhooyr.io/websocket"
)

const (
	// ConnectPath is the bootstrap endpoint.
	ConnectPath = "/api/rtm.connect"
	// StreamPath is the websocket endpoint.
	StreamPath = "/rtm"

	outgoingBuffer  = 64
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// outbound is one item queued to every connected peer. A close item makes
// the peer start the close handshake after the frames queued before it.
type outbound struct {
	data  []byte
	close bool
}

// Server is the fake event feed.
type Server struct {
	address string
	token   string
	logger  *slog.Logger

	listener net.Listener
	server   *http.Server
	feed     *hub.Topic[outbound]
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithToken makes the bootstrap endpoint reject requests without token.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a server that will listen on address.
func New(address string, opts ...Option) *Server {
	s := &Server{
		address: address,
		logger:  slog.Default(),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.feed = hub.NewTopic[outbound]("feed", func(f hub.Fault) {
		s.logger.Warn("peer enqueue failed", "peer", f.Subscription, "error", f.Err)
	})
	return s
}

// Start listens and serves in the background. It returns once the listener
// is bound, so Addr and URL are valid afterwards.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(ConnectPath, s.handleConnect)
	mux.HandleFunc(StreamPath, s.handleStream)
	s.server = &http.Server{Handler: mux}

	s.logger.Info("event feed started", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("event feed stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes every peer connection and shuts the server down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		s.wg.Wait()
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the base HTTP URL, suitable for api.New.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.Addr()
}

// StreamURL returns the websocket URL handed out by the bootstrap endpoint.
func (s *Server) StreamURL() string {
	if s.listener == nil {
		return ""
	}
	return "ws://" + s.Addr() + StreamPath
}

// ClientCount returns the number of peers receiving the feed.
func (s *Server) ClientCount() int {
	return s.feed.Len()
}

// Broadcast encodes ev and sends it to every peer. It returns the number of
// peers the frame was offered to; a peer whose queue is full skips it.
func (s *Server) Broadcast(ev protocol.Event) (int, error) {
	data, err := ev.Encode()
	if err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}
	return s.Publish(data), nil
}

// Publish sends data verbatim as a text frame to every peer, so tests can
// inject frames that are not valid events.
func (s *Server) Publish(data []byte) int {
	return s.feed.Publish(outbound{data: data})
}

// CloseAll starts a server-initiated close handshake with every peer, after
// the frames already queued for it.
func (s *Server) CloseAll() int {
	return s.feed.Publish(outbound{close: true})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.FormValue("token") != s.token {
		s.logger.Warn("rejecting bootstrap request", "remote", r.RemoteAddr)
		writeJSON(w, map[string]any{"ok": false, "error": "invalid_auth"})
		return
	}
	writeJSON(w, map[string]any{
		"ok":  true,
		"url": "ws://" + r.Host + StreamPath,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Added before the hijack so Stop's Shutdown has either seen this
	// handler or never will.
	s.wg.Add(1)
	defer s.wg.Done()

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to accept websocket connection", "error", err)
		return
	}

	// Peers only receive; CloseRead answers control frames and reports the
	// peer's close through ctx.
	ctx := wsConn.CloseRead(r.Context())
	conn := ws.NewConnWithAddr(wsConn, r.RemoteAddr)
	outgoing := make(chan outbound, outgoingBuffer)

	sub := s.feed.Subscribe(func(m outbound) error {
		select {
		case outgoing <- m:
			return nil
		default:
			return errors.New("outgoing queue full")
		}
	})
	defer sub.Unsubscribe()

	logger := s.logger.With("peer", sub.ID(), "remote", r.RemoteAddr)
	logger.Info("peer connected")

	hello := protocol.Event{Kind: protocol.KindHello, Body: protocol.Body{}}
	data, err := hello.Encode()
	if err != nil {
		logger.Error("failed to encode hello", "error", err)
		_ = conn.Close()
		return
	}
	if err := write(ctx, conn, data); err != nil {
		logger.Warn("failed to send hello", "error", err)
		_ = conn.Close()
		return
	}

	s.writeLoop(ctx, conn, outgoing, logger)
}

func (s *Server) writeLoop(ctx context.Context, conn transport.Conn, outgoing <-chan outbound, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("peer disconnected")
			return
		case <-s.quit:
			logger.Info("closing peer", "reason", "server stopping")
			_ = conn.Close()
			return
		case m := <-outgoing:
			if m.close {
				logger.Info("closing peer", "reason", "close requested")
				if err := conn.Close(); err != nil {
					logger.Debug("close handshake incomplete", "error", err)
				}
				return
			}
			if err := write(ctx, conn, m.data); err != nil {
				logger.Warn("failed to write to peer", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn transport.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, transport.Frame{Type: transport.MessageText, Data: data})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
