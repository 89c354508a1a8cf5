// Package testhelpers starts a complete relay behind httptest for the
// integration tests. The relay talks to a fake rates upstream and writes its
// audit log to a temporary file.
package testhelpers

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/audit"
	"github.com/Tyrowin/relaychat/internal/server"
)

// RatesPayload is what the fake upstream serves by default.
const RatesPayload = `[
	{"ccy":"EUR","base_ccy":"UAH","buy":"40.10000","sale":"41.20000"},
	{"ccy":"USD","base_ccy":"UAH","buy":"37.45000","sale":"38.05000"}
]`

// RatesReply is the reply a client gets for RatesPayload.
const RatesReply = "EUR: Buy - 40.10000, Sell - 41.20000\nUSD: Buy - 37.45000, Sell - 38.05000\n"

// Relay is a running relay with its upstream and audit file.
type Relay struct {
	Server        *server.Server
	HTTP          *httptest.Server
	Upstream      *httptest.Server
	AuditPath     string
	UpstreamHits  *atomic.Int32
	upstreamState *atomic.Int32
}

// StartRelay starts a relay. customize may adjust the configuration before
// the server is built.
func StartRelay(t *testing.T, customize func(cfg *server.Config)) *Relay {
	t.Helper()

	r := &Relay{
		UpstreamHits:  &atomic.Int32{},
		upstreamState: &atomic.Int32{},
		AuditPath:     filepath.Join(t.TempDir(), "exchange_logs.txt"),
	}
	r.upstreamState.Store(http.StatusOK)
	r.Upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.UpstreamHits.Add(1)
		status := int(r.upstreamState.Load())
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, RatesPayload)
	}))

	cfg := server.NewConfig()
	cfg.Rates.URL = r.Upstream.URL
	cfg.Rates.ArchiveURL = r.Upstream.URL
	cfg.Rates.Timeout = 2 * time.Second
	cfg.Audit.File = r.AuditPath
	if customize != nil {
		customize(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink, err := audit.OpenFile(cfg.Audit.File, logger)
	require.NoError(t, err)

	r.Server = server.New(cfg, server.WithLogger(logger), server.WithAuditSink(sink))
	r.HTTP = httptest.NewServer(r.Server.Handler())

	t.Cleanup(func() {
		_ = r.Server.Shutdown(2 * time.Second)
		r.HTTP.Close()
		r.Upstream.Close()
	})
	return r
}

// FailUpstream makes the fake upstream answer with status from now on.
func (r *Relay) FailUpstream(status int) {
	r.upstreamState.Store(int32(status))
}

// URL returns the WebSocket endpoint.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.HTTP.URL, "http") + "/ws"
}

// Connect dials the relay and waits until the session is registered. It
// returns the connection and the name other clients see it under.
func (r *Relay) Connect(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	before := r.Server.Hub().Len()

	conn, err := ConnectWebSocket(r.URL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return r.Server.Hub().Len() > before },
		2*time.Second, 10*time.Millisecond)
	return conn, conn.LocalAddr().String()
}

// AuditLines returns the audit log split into lines.
func (r *Relay) AuditLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(r.AuditPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
func ConnectWebSocket(url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send writes text as a single text frame.
func Send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

// Receive reads the next text frame within timeout.
func Receive(t *testing.T, conn *websocket.Conn, timeout time.Duration) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

// ExpectNoMessage fails if a frame arrives within timeout. The connection
// is not usable for reads afterwards, since gorilla treats a read timeout
// as fatal.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %q", data)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitAuditLines waits until the audit log holds n lines and returns them.
// The reply to a query is queued before its audit record is written.
func (r *Relay) WaitAuditLines(t *testing.T, n int) []string {
	t.Helper()
	var lines []string
	require.Eventually(t, func() bool {
		lines = r.AuditLines(t)
		return len(lines) == n
	}, 2*time.Second, 10*time.Millisecond)
	return lines
}
