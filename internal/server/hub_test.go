package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	return NewClient(nil, addr, *NewConfig(), nil)
}

func newTestClientWithBuffer(t *testing.T, addr string, size int) *Client {
	t.Helper()
	cfg := NewConfig()
	cfg.SendBufferSize = size
	return NewClient(nil, addr, *cfg, nil)
}

// drain returns everything currently queued for c.
func drain(c *Client) []string {
	var out []string
	for {
		select {
		case msg, ok := <-c.GetSendChan():
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	a := newTestClient(t, "10.0.0.1:1000")
	b := newTestClient(t, "10.0.0.2:1000")

	hub.Register(a)
	hub.Register(b)
	req.Equal(2, hub.Len())
	req.True(hub.Contains(a))
	req.Equal(2.0, testutil.ToFloat64(hub.metrics.ConnectedClients))

	hub.Unregister(a)
	req.Equal(1, hub.Len())
	req.False(hub.Contains(a))
	req.True(hub.Contains(b))
	req.Equal(1.0, testutil.ToFloat64(hub.metrics.ConnectedClients))

	_, ok := <-a.GetSendChan()
	req.False(ok, "send queue must be closed after unregister")
}

func TestHubUnregisterTwiceIsNoop(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient(t, "10.0.0.1:1000")
	hub.Register(c)

	require.NotPanics(t, func() {
		hub.Unregister(c)
		hub.Unregister(c)
		hub.Unregister(nil)
	})
	require.Zero(t, hub.Len())
}

func TestHubRegisterNil(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Register(nil)
	require.Zero(t, hub.Len())
}

func TestHubBroadcastIncludesSenderByDefault(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	clients := []*Client{
		newTestClient(t, "a"),
		newTestClient(t, "b"),
		newTestClient(t, "c"),
	}
	for _, c := range clients {
		hub.Register(c)
	}

	delivered := hub.Broadcast(BroadcastMessage{Payload: []byte("a: hello")})

	req.Equal(3, delivered)
	for _, c := range clients {
		req.Equal([]string{"a: hello"}, drain(c))
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	a := newTestClient(t, "a")
	b := newTestClient(t, "b")
	c := newTestClient(t, "c")
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	delivered := hub.Broadcast(BroadcastMessage{Sender: a, Payload: []byte("a: hello")})

	req.Equal(2, delivered)
	req.Empty(drain(a))
	req.Equal([]string{"a: hello"}, drain(b))
	req.Equal([]string{"a: hello"}, drain(c))
}

func TestHubBroadcastEmpty(t *testing.T) {
	hub := NewHub(nil, nil)
	require.Zero(t, hub.Broadcast(BroadcastMessage{Payload: []byte("nobody")}))
}

func TestHubBroadcastNeverReachesUnregistered(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	a := newTestClient(t, "a")
	b := newTestClient(t, "b")
	hub.Register(a)
	hub.Register(b)

	hub.Unregister(b)
	delivered := hub.Broadcast(BroadcastMessage{Payload: []byte("after")})

	req.Equal(1, delivered)
	req.Equal([]string{"after"}, drain(a))
	req.Empty(drain(b))
	req.False(hub.SendTo(b, []byte("reply")))
}

func TestHubBroadcastSkipsFullQueue(t *testing.T) {
	req := require.New(t)
	hub := NewHub(nil, nil)
	slow := newTestClientWithBuffer(t, "slow", 1)
	fast := newTestClient(t, "fast")
	hub.Register(slow)
	hub.Register(fast)

	req.Equal(2, hub.Broadcast(BroadcastMessage{Payload: []byte("one")}))
	req.Equal(1, hub.Broadcast(BroadcastMessage{Payload: []byte("two")}))

	req.Equal([]string{"one"}, drain(slow))
	req.Equal([]string{"one", "two"}, drain(fast))
	req.Equal(1.0, testutil.ToFloat64(hub.metrics.BroadcastSkipped))
	req.True(hub.Contains(slow), "removal is left to the client's own session")
}

func TestHubPreservesPerClientOrder(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newTestClient(t, "a")
	hub.Register(c)

	var want []string
	for i := 0; i < 50; i++ {
		msg := fmt.Sprintf("message %d", i)
		want = append(want, msg)
		if i%5 == 0 {
			hub.SendTo(c, []byte(msg))
			continue
		}
		hub.Broadcast(BroadcastMessage{Payload: []byte(msg)})
	}

	require.Equal(t, want, drain(c))
}

func TestHubConcurrentMembershipAndBroadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	stable := newTestClientWithBuffer(t, "stable", 4096)
	hub.Register(stable)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c := newTestClientWithBuffer(t, fmt.Sprintf("churn-%d-%d", id, j), 4)
				hub.Register(c)
				hub.Unregister(c)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.Broadcast(BroadcastMessage{Payload: []byte(fmt.Sprintf("%d-%d", id, j))})
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, hub.Len())
	require.Len(t, drain(stable), 400)
}

func TestHubShutdownWithoutSessions(t *testing.T) {
	hub := NewHub(nil, nil)

	require.NoError(t, hub.Shutdown(time.Second))
	require.ErrorIs(t, hub.Context().Err(), context.Canceled)
	require.False(t, hub.Go(func() { t.Error("must not run after shutdown") }))
}

func TestHubShutdownWaitsForSessions(t *testing.T) {
	hub := NewHub(nil, nil)
	finished := make(chan struct{})

	require.True(t, hub.Go(func() {
		<-hub.Context().Done()
		time.Sleep(20 * time.Millisecond)
		close(finished)
	}))

	require.NoError(t, hub.Shutdown(2*time.Second))
	select {
	case <-finished:
	default:
		t.Fatal("Shutdown returned before the session finished")
	}
}

func TestHubShutdownTimeout(t *testing.T) {
	hub := NewHub(nil, nil)
	release := make(chan struct{})
	defer close(release)

	require.True(t, hub.Go(func() { <-release }))

	start := time.Now()
	err := hub.Shutdown(50 * time.Millisecond)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}
