// Package integration runs the relay end to end over real WebSocket
// connections, a fake rates upstream and a file audit log.
package integration

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/rates"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

const readTimeout = 2 * time.Second

var auditLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}: 'exchange' command executed$`)

func TestBroadcastReachesOtherClients(t *testing.T) {
	relay := testhelpers.StartRelay(t, func(cfg *server.Config) { cfg.EchoToSender = false })

	a, nameA := relay.Connect(t)
	b, _ := relay.Connect(t)
	c, _ := relay.Connect(t)

	testhelpers.Send(t, a, "hello")

	require.Equal(t, nameA+": hello", testhelpers.Receive(t, b, readTimeout))
	require.Equal(t, nameA+": hello", testhelpers.Receive(t, c, readTimeout))
	testhelpers.ExpectNoMessage(t, a, 200*time.Millisecond)
	require.Empty(t, relay.AuditLines(t))
}

func TestBroadcastEchoesToSenderByDefault(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	a, nameA := relay.Connect(t)
	b, _ := relay.Connect(t)

	testhelpers.Send(t, a, "hello")

	require.Equal(t, nameA+": hello", testhelpers.Receive(t, a, readTimeout))
	require.Equal(t, nameA+": hello", testhelpers.Receive(t, b, readTimeout))
}

func TestExchangeRepliesOnlyToRequester(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	a, _ := relay.Connect(t)
	b, _ := relay.Connect(t)

	testhelpers.Send(t, a, "exchange 3")

	require.Equal(t, testhelpers.RatesReply, testhelpers.Receive(t, a, readTimeout))
	testhelpers.ExpectNoMessage(t, b, 200*time.Millisecond)

	lines := relay.WaitAuditLines(t, 1)
	require.Regexp(t, auditLine, lines[0])
	require.EqualValues(t, 1, relay.UpstreamHits.Load())
}

func TestExchangeTrailingWindow(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	a, _ := relay.Connect(t)

	testhelpers.Send(t, a, "exchange 1")

	require.Equal(t, "USD: Buy - 37.45000, Sell - 38.05000\n", testhelpers.Receive(t, a, readTimeout))
}

func TestInvalidExchangeCommands(t *testing.T) {
	for _, line := range []string{"exchange abc", "exchange 1 2", "exchange", "exchange -1"} {
		t.Run(line, func(t *testing.T) {
			relay := testhelpers.StartRelay(t, nil)
			a, _ := relay.Connect(t)
			b, _ := relay.Connect(t)

			testhelpers.Send(t, a, line)

			require.Equal(t, server.UsageText, testhelpers.Receive(t, a, readTimeout))
			testhelpers.ExpectNoMessage(t, b, 200*time.Millisecond)
			require.Empty(t, relay.AuditLines(t))
			require.Zero(t, relay.UpstreamHits.Load())
		})
	}
}

func TestExchangeUpstreamFailure(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	relay.FailUpstream(http.StatusInternalServerError)
	a, _ := relay.Connect(t)

	testhelpers.Send(t, a, "exchange 5")

	require.Equal(t, rates.FailureText, testhelpers.Receive(t, a, readTimeout))
	relay.WaitAuditLines(t, 1)
	require.EqualValues(t, 1, relay.UpstreamHits.Load())
}

func TestRepliesKeepRequestOrder(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	a, nameA := relay.Connect(t)

	testhelpers.Send(t, a, "exchange 1")
	testhelpers.Send(t, a, "after")
	testhelpers.Send(t, a, "exchange x")

	require.Equal(t, "USD: Buy - 37.45000, Sell - 38.05000\n", testhelpers.Receive(t, a, readTimeout))
	require.Equal(t, nameA+": after", testhelpers.Receive(t, a, readTimeout))
	require.Equal(t, server.UsageText, testhelpers.Receive(t, a, readTimeout))
}
