package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/mKV/lib/db/engines/lvldb"
	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/serializer"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/ValentinKolb/mKV/rpc/transport/tcp"
	"github.com/ValentinKolb/mKV/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type testServer struct {
	*RPCServer
	tcp  transport.IRPCServerTransport
	unix transport.IRPCServerTransport
	done chan error
}

// startServer serves an in-memory registry on a random tcp port and a unix
// socket and waits until both listeners are bound
func startServer(t *testing.T, modify func(c *common.ServerConfig)) *testServer {
	t.Helper()

	// unix socket paths are limited to ~100 bytes, t.TempDir is often too long
	dir, err := os.MkdirTemp("", "mkv")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	config := common.ServerConfig{
		TCPEndpoint:  "127.0.0.1:0",
		UnixEndpoint: filepath.Join(dir, "mkv.sock"),
		TCPNoDelay:   true,
		Engine:       common.EngineMemory,
		LogLevel:     "error",
	}
	if modify != nil {
		modify(&config)
	}

	reg, err := registry.New("", lvldb.MemoryFactory())
	require.NoError(t, err)

	ts := &testServer{
		tcp:  tcp.NewTCPServerTransport(serializer.NewBinarySerializer()),
		unix: unix.NewUnixServerTransport(serializer.NewBinarySerializer()),
		done: make(chan error, 1),
	}
	ts.RPCServer = NewRPCServer(config, reg, ts.tcp, ts.unix)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { ts.done <- ts.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-ts.done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		return ts.tcp.Addr() != nil && ts.unix.Addr() != nil
	}, 5*time.Second, 5*time.Millisecond)
	return ts
}

func (ts *testServer) connect(t *testing.T, kind string) transport.IRPCClientTransport {
	t.Helper()

	var (
		c      transport.IRPCClientTransport
		config = common.ClientConfig{Transport: kind, TimeoutSecond: 5, TCPNoDelay: true}
	)
	switch kind {
	case "tcp":
		c = tcp.NewTCPClientTransport()
		config.Endpoint = ts.tcp.Addr().String()
	case "unix":
		c = unix.NewUnixClientTransport()
		config.Endpoint = ts.unix.Addr().String()
	default:
		t.Fatalf("unknown transport %s", kind)
	}

	require.NoError(t, c.Connect(config))
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c transport.IRPCClientTransport, req common.Message) common.Message {
	t.Helper()
	resp, err := c.Send(req)
	require.NoError(t, err)
	return resp
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestServeBothTransports(t *testing.T) {
	ts := startServer(t, nil)
	overTCP := ts.connect(t, "tcp")
	overUnix := ts.connect(t, "unix")

	requireOk(t, send(t, overTCP, common.NewUseRequest("shared")))
	requireOk(t, send(t, overTCP, common.NewWriteRequest(kv("k", "from tcp"))))

	// state is per connection, data is shared
	requireError(t, send(t, overUnix, common.NewReadRequest([]byte("k"))), msgNoDBSelected)
	requireOk(t, send(t, overUnix, common.NewUseRequest("shared")))
	assert.Equal(t, []string{"from tcp"}, requireTokens(t, send(t, overUnix, common.NewReadRequest([]byte("k")))))
	assert.Equal(t, []string{"shared"}, requireTokens(t, send(t, overUnix, common.NewListDBRequest())))
}

func TestDetachAcrossConnections(t *testing.T) {
	ts := startServer(t, nil)
	holder := ts.connect(t, "tcp")
	detacher := ts.connect(t, "unix")

	requireOk(t, send(t, holder, common.NewUseRequest("x")))
	requireOk(t, send(t, holder, common.NewWriteRequest(kv("a", "1"))))
	requireOk(t, send(t, detacher, common.NewDetachRequest("x")))

	assert.Empty(t, requireTokens(t, send(t, detacher, common.NewListDBRequest())))
	assert.Equal(t, []string{"1"}, requireTokens(t, send(t, holder, common.NewReadRequest([]byte("a")))))

	requireOk(t, send(t, detacher, common.NewUseRequest("x")))
	assert.Equal(t, []string{"1"}, requireTokens(t, send(t, detacher, common.NewReadRequest([]byte("a")))))
}

func TestConcurrentClients(t *testing.T) {
	ts := startServer(t, nil)

	const (
		clients = 8
		keys    = 50
	)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		kind := "tcp"
		if i%2 == 1 {
			kind = "unix"
		}
		c := ts.connect(t, kind)

		wg.Add(1)
		go func(i int, c transport.IRPCClientTransport) {
			defer wg.Done()
			if _, err := c.Send(common.NewUseRequest("load")); err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < keys; j++ {
				key := fmt.Sprintf("c%02d-k%03d", i, j)
				if _, err := c.Send(common.NewWriteRequest(kv(key, key))); err != nil {
					t.Error(err)
					return
				}
			}
		}(i, c)
	}
	wg.Wait()

	c := ts.connect(t, "tcp")
	requireOk(t, send(t, c, common.NewUseRequest("load")))
	pairs := requirePairs(t, send(t, c, common.NewRangeBeginRequest(clients*keys+10)))
	assert.Len(t, pairs, clients*keys)
	assert.Equal(t, "c00-k000=c00-k000", pairs[0])
}

func TestMalformedFrameClosesOnlyThatConnection(t *testing.T) {
	ts := startServer(t, nil)
	good := ts.connect(t, "tcp")
	requireOk(t, send(t, good, common.NewUseRequest("db")))

	raw, err := net.Dial("tcp", ts.tcp.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	_, err = raw.Write([]byte{0xFF})
	require.NoError(t, err)

	// no response, the server just hangs up
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := raw.Read(make([]byte, 16))
	assert.Equal(t, 0, n)
	assert.Error(t, err)

	tok := send(t, good, common.NewCurrentDBRequest()).(*common.TokenResp)
	assert.Equal(t, "db", string(tok.Token))
}

func TestPipelinedRequests(t *testing.T) {
	ts := startServer(t, nil)
	s := serializer.NewBinarySerializer()

	raw, err := net.Dial("unix", ts.unix.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	// three frames in one write are answered in order
	var buf bytes.Buffer
	for _, req := range []common.Message{
		common.NewUseRequest("pipe"),
		common.NewWriteRequest(kv("k", "v")),
		common.NewReadRequest([]byte("k")),
	} {
		data, err := s.Serialize(req)
		require.NoError(t, err)
		buf.Write(data)
	}
	_, err = raw.Write(buf.Bytes())
	require.NoError(t, err)

	require.NoError(t, raw.SetReadDeadline(time.Now().Add(5*time.Second)))
	first, err := s.Deserialize(raw)
	require.NoError(t, err)
	requireOk(t, first)
	second, err := s.Deserialize(raw)
	require.NoError(t, err)
	requireOk(t, second)
	third, err := s.Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, requireTokens(t, third))
}

func TestMaxConnections(t *testing.T) {
	ts := startServer(t, func(c *common.ServerConfig) { c.MaxConnections = 1 })

	first := ts.connect(t, "tcp")
	requireOk(t, send(t, first, common.NewUseRequest("db")))
	require.Eventually(t, func() bool { return ts.tcp.ActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	second := ts.connect(t, "tcp")
	_, err := second.Send(common.NewListDBRequest())
	assert.Error(t, err)

	// the first connection is unaffected
	assert.Equal(t, []string{"db"}, requireTokens(t, send(t, first, common.NewListDBRequest())))
}

func TestSessionCountAndMetrics(t *testing.T) {
	ts := startServer(t, nil)
	c := ts.connect(t, "tcp")

	requireOk(t, send(t, c, common.NewUseRequest("m")))
	requireOk(t, send(t, c, common.NewWriteRequest(kv("a", "1"))))
	requireError(t, send(t, c, common.NewOkResponse("not a command")), msgUnknownCommand)
	require.Eventually(t, func() bool { return ts.sessions.Load() == 1 }, time.Second, 5*time.Millisecond)

	var buf bytes.Buffer
	ts.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `mkv_requests_total{command="use"} 1`)
	assert.Contains(t, out, `mkv_requests_total{command="write"} 1`)
	assert.Contains(t, out, `mkv_requests_total{command="unknown"} 1`)
	assert.Contains(t, out, "mkv_connections_active 1")
	assert.Contains(t, out, "mkv_databases_attached 1")

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return ts.sessions.Load() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestCloseStopsServe(t *testing.T) {
	ts := startServer(t, nil)
	c := ts.connect(t, "unix")
	requireOk(t, send(t, c, common.NewUseRequest("db")))

	require.NoError(t, ts.Close())
	assert.ErrorIs(t, ts.Health(), ErrShuttingDown)

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err // consumed again by cleanup
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	_, err := c.Send(common.NewListDBRequest())
	assert.Error(t, err)
	assert.Equal(t, 0, ts.registry.OpenCount())
}
