package forward

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/achetronic/forwarder/api"
)

func TestRelayPrintsDatagramsWithoutForwarding(t *testing.T) {
	t.Parallel()

	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	remote, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })

	s := NewSession(1, api.ProtocolUDP, local, logr.Discard())
	require.NoError(t, s.Connect(context.Background(), &net.Dialer{}, remote.LocalAddr().String()))

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Relay(ctx, out, 50*time.Millisecond)
	}()

	client, err := net.DialUDP("udp", nil, local.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ping\n")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, remote.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = remote.ReadFrom(make([]byte, 64))
	require.True(t, errors.Is(err, os.ErrDeadlineExceeded), "the remote endpoint receives nothing")

	cancel()
	requireClosed(t, done)
	require.Equal(t, SessionStateClosed, s.State())
}

func TestRelayRequiresActiveSession(t *testing.T) {
	t.Parallel()

	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	s := NewSession(1, api.ProtocolUDP, local, logr.Discard())
	s.Relay(context.Background(), &syncBuffer{}, 50*time.Millisecond)

	require.Equal(t, SessionStateClosed, s.State())
	_, _, err = local.ReadFrom(make([]byte, 1))
	require.ErrorIs(t, err, net.ErrClosed)
}
