package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

func originHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// TestOriginValidation covers browser origins against the allow list.
// Clients without an Origin header are not browsers and are accepted.
func TestOriginValidation(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"https://chat.example.com", "http://localhost:3000"}
	})

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{name: "missing origin", origin: "", allowed: true},
		{name: "allowed origin", origin: "https://chat.example.com", allowed: true},
		{name: "allowed origin with different case", origin: "HTTPS://Chat.Example.com", allowed: true},
		{name: "second allowed origin", origin: "http://localhost:3000", allowed: true},
		{name: "scheme mismatch", origin: "http://chat.example.com", allowed: false},
		{name: "subdomain", origin: "https://evil.chat.example.com", allowed: false},
		{name: "malformed origin", origin: "chat.example.com", allowed: false},
		{name: "null origin", origin: "null", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(relay.URL(), originHeader(tt.origin))
			if resp != nil && resp.Body != nil {
				defer resp.Body.Close()
			}
			if tt.allowed {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

// TestWildcardOrigin accepts any well-formed origin.
func TestWildcardOrigin(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	conn, err := testhelpers.ConnectWebSocket(relay.URL(), originHeader("https://anywhere.example"))
	require.NoError(t, err)
	_ = conn.Close()
}

// TestMessageSizeLimit closes the offending connection and leaves others
// untouched.
func TestMessageSizeLimit(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 128
		cfg.EchoToSender = false
	})

	sender, nameSender := relay.Connect(t)
	big, _ := relay.Connect(t)
	watcher, _ := relay.Connect(t)

	testhelpers.Send(t, sender, strings.Repeat("a", 128))
	require.Equal(t, nameSender+": "+strings.Repeat("a", 128), testhelpers.Receive(t, watcher, readTimeout))

	testhelpers.Send(t, big, strings.Repeat("b", 129))
	require.NoError(t, big.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := big.ReadMessage(); err != nil {
			break
		}
	}
	require.Eventually(t, func() bool { return relay.Server.Hub().Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	testhelpers.Send(t, sender, "still works")
	require.Equal(t, nameSender+": still works", testhelpers.Receive(t, watcher, readTimeout))
}

// TestRateLimiting drops messages beyond the burst without disconnecting.
func TestRateLimiting(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) {
		cfg.EchoToSender = false
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})

	flooder, nameFlooder := relay.Connect(t)
	watcher, _ := relay.Connect(t)

	for i := 0; i < 10; i++ {
		testhelpers.Send(t, flooder, "spam")
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, nameFlooder+": spam", testhelpers.Receive(t, watcher, readTimeout))
	}
	testhelpers.ExpectNoMessage(t, watcher, 200*time.Millisecond)
	require.Equal(t, 2, relay.Server.Hub().Len())
}
