package gobwas_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/rtm-client/internal/transport"
	"github.com/omochice/rtm-client/internal/transport/gobwas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_Read(t *testing.T) {
	wsURL := newServer(t, func(conn net.Conn) {
		_ = wsutil.WriteServerText(conn, []byte(`{"kind":"hello"}`))
		wsutil.ReadClientData(conn)
	})

	conn, err := gobwas.NewDialer(transport.Options{}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	f, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, transport.MessageText, f.Type)
	assert.Equal(t, `{"kind":"hello"}`, string(f.Data))
}

func TestConn_ReadAnswersPing(t *testing.T) {
	wsURL := newServer(t, func(conn net.Conn) {
		_ = wsutil.WriteServerMessage(conn, ws.OpPing, []byte("p"))
		_ = wsutil.WriteServerText(conn, []byte(`{"kind":"hello"}`))
		wsutil.ReadClientData(conn)
	})

	conn, err := gobwas.NewDialer(transport.Options{}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	f, err := conn.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"hello"}`, string(f.Data))
}

func TestConn_Write(t *testing.T) {
	received := make(chan []byte, 1)
	wsURL := newServer(t, func(conn net.Conn) {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		received <- data
	})

	conn, err := gobwas.NewDialer(transport.Options{}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), transport.Frame{Type: transport.MessageText, Data: []byte("hello")}))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestConn_PeerCloseReturnsEOF(t *testing.T) {
	wsURL := newServer(t, func(conn net.Conn) {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye")
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, body)
		wsutil.ReadClientData(conn)
	})

	conn, err := gobwas.NewDialer(transport.Options{}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_ReadLimit(t *testing.T) {
	wsURL := newServer(t, func(conn net.Conn) {
		_ = wsutil.WriteServerText(conn, []byte(strings.Repeat("x", 2048)))
		wsutil.ReadClientData(conn)
	})

	conn, err := gobwas.NewDialer(transport.Options{ReadLimit: 1024}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestConn_AbruptDisconnectIsNotEOF(t *testing.T) {
	wsURL := newServer(t, func(conn net.Conn) {})

	conn, err := gobwas.NewDialer(transport.Options{}).Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestDialer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := gobwas.NewDialer(transport.Options{}).Dial(ctx, "ws://127.0.0.1:1/rtm")
	assert.Error(t, err)
}
