package commands

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/achetronic/forwarder/logger"
)

func TestRootCommandPrintsUsageOnWrongArgs(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	cmd := newTestCommand(t, out, strings.NewReader(""))
	cmd.SetArgs([]string{"example.com", "80"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "forwarder remoteHost remotePort localPort")
	require.Contains(t, out.String(), "DUMP_WIDTH")
}

func TestRootCommandRejectsInvalidPort(t *testing.T) {
	t.Parallel()

	cmd := newTestCommand(t, &syncBuffer{}, strings.NewReader(""))
	cmd.SetArgs([]string{"example.com", "http", "8080"})

	err := cmd.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "remote port")
}

func TestRootCommandForwardsUntilEnter(t *testing.T) {
	t.Parallel()

	backend := newEchoServer(t)
	backendAddr := backend.Addr().(*net.TCPAddr)
	localPort := freePort(t)

	envFile := filepath.Join(t.TempDir(), "forwarder.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DUMP=1\nDUMP_WIDTH=20\n"), 0o600))

	out := &syncBuffer{}
	stdin, enter := io.Pipe()
	cmd := newTestCommand(t, out, stdin)
	cmd.SetArgs([]string{"--env-file", envFile, backendAddr.IP.String(), strconv.Itoa(backendAddr.Port), strconv.Itoa(localPort)})

	result := make(chan error, 1)
	go func() {
		result <- cmd.ExecuteContext(context.Background())
	}()

	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	_, err := conn.Write([]byte("HELLO"))
	require.NoError(t, err)
	_, err = io.ReadFull(conn, make([]byte, 5))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = enter.Write([]byte("\n"))
	require.NoError(t, err)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "forwarder did not stop")
	}

	require.Equal(t, 2, strings.Count(out.String(), "  000000 48 45 4C 4C 4F "), out.String())
}

func TestOpenDumpOutputAppendsToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0o600))

	out, closeDump, err := openDumpOutput(path, io.Discard)
	require.NoError(t, err)
	_, err = io.WriteString(out, "after\n")
	require.NoError(t, err)
	require.NoError(t, closeDump())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "before\nafter\n", string(content))
}

func TestOpenDumpOutputFallsBack(t *testing.T) {
	t.Parallel()

	fallback := &bytes.Buffer{}
	out, closeDump, err := openDumpOutput("", fallback)
	require.NoError(t, err)
	require.Same(t, fallback, out)
	require.NoError(t, closeDump())

	_, _, err = openDumpOutput(filepath.Join(t.TempDir(), "missing", "dump.txt"), fallback)
	require.ErrorContains(t, err, "failed opening dump output")
}

func newTestCommand(t *testing.T, out io.Writer, in io.Reader) *cobra.Command {
	t.Helper()

	log := logger.NewWithWriters("forwarder", io.Discard, io.Discard)
	cmd, err := NewRootCommand(log)
	require.NoError(t, err)

	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(in)
	return cmd
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newEchoServer(t *testing.T) net.Listener {
	t.Helper()

	l, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()

	return l
}

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.buf.String()
}
