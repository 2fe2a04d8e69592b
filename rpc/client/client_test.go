package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/mKV/lib/db/engines/lvldb"
	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/serializer"
	"github.com/ValentinKolb/mKV/rpc/server"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/ValentinKolb/mKV/rpc/transport/tcp"
	"github.com/ValentinKolb/mKV/rpc/transport/unix"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type endpoints struct {
	tcp  string
	unix string
}

func startServer(t *testing.T) endpoints {
	t.Helper()

	dir, err := os.MkdirTemp("", "mkv")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	config := common.ServerConfig{
		TCPEndpoint:  "127.0.0.1:0",
		UnixEndpoint: filepath.Join(dir, "mkv.sock"),
		Engine:       common.EngineMemory,
		LogLevel:     "error",
	}

	reg, err := registry.New("", lvldb.MemoryFactory())
	require.NoError(t, err)

	tcpServer := tcp.NewTCPServerTransport(serializer.NewBinarySerializer())
	unixServer := unix.NewUnixServerTransport(serializer.NewBinarySerializer())
	s := server.NewRPCServer(config, reg, tcpServer, unixServer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		return tcpServer.Addr() != nil && unixServer.Addr() != nil
	}, 5*time.Second, 5*time.Millisecond)

	return endpoints{tcp: tcpServer.Addr().String(), unix: unixServer.Addr().String()}
}

func newTestClient(t *testing.T, e endpoints, kind string) *Client {
	t.Helper()

	config := common.ClientConfig{Transport: kind, TimeoutSecond: 5}
	var tr transport.IRPCClientTransport
	if kind == "unix" {
		config.Endpoint = e.unix
		tr = unix.NewUnixClientTransport()
	} else {
		config.Endpoint = e.tcp
		tr = tcp.NewTCPClientTransport()
	}

	c, err := NewClient(config, tr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func keys(pairs []common.KV) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = string(p.Key)
	}
	return out
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestDataCommandsNeedSelection(t *testing.T) {
	c := newTestClient(t, startServer(t), "tcp")

	_, err := c.Read([]byte("k"))
	assert.ErrorIs(t, err, ErrNoDBSelected)
	assert.ErrorIs(t, c.Set([]byte("k"), []byte("v")), ErrNoDBSelected)
	assert.ErrorIs(t, c.Delete([]byte("k")), ErrNoDBSelected)
	_, err = c.Range(Begin(), 10, false)
	assert.ErrorIs(t, err, ErrNoDBSelected)

	// answered by the server
	_, err = c.CurrentDB()
	assert.ErrorIs(t, err, ErrNoDBSelected)
}

func TestUseAndList(t *testing.T) {
	c := newTestClient(t, startServer(t), "unix")

	require.NoError(t, c.Use("b"))
	require.NoError(t, c.Use("a"))

	current, err := c.CurrentDB()
	require.NoError(t, err)
	assert.Equal(t, "a", current)
	assert.Equal(t, "a", c.Selected())

	names, err := c.ListDB()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	err = c.Use("a/b")
	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "invalid database name")
	assert.Equal(t, "a", c.Selected())
}

func TestReadWriteDelete(t *testing.T) {
	c := newTestClient(t, startServer(t), "tcp")
	require.NoError(t, c.Use("data"))

	require.NoError(t, c.Write(
		common.KV{Key: []byte("k1"), Value: []byte("v1")},
		common.KV{Key: []byte("k2"), Value: []byte("v2")},
	))

	values, err := c.Read([]byte("k1"), []byte("k2"), []byte("k3"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v1"), []byte("v2"), {}}, values)

	value, loaded, err := c.Get([]byte("k2"))
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, []byte("v2"), value)

	require.NoError(t, c.Delete([]byte("k2")))
	_, loaded, err = c.Get([]byte("k2"))
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestWriteTokens(t *testing.T) {
	c := newTestClient(t, startServer(t), "tcp")
	require.NoError(t, c.Use("data"))

	err := c.WriteTokens([]byte("a"), []byte("1"), []byte("b"))
	assert.ErrorIs(t, err, ErrInvalidData)

	require.NoError(t, c.WriteTokens([]byte("a"), []byte("1"), []byte("b"), []byte("2")))
	values, err := c.Read([]byte("a"), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, values)
}

func TestRangeModes(t *testing.T) {
	c := newTestClient(t, startServer(t), "unix")
	require.NoError(t, c.Use("r"))
	require.NoError(t, c.WriteTokens(
		[]byte("a"), []byte("1"), []byte("b"), []byte("2"),
		[]byte("c"), []byte("3"), []byte("d"), []byte("4"),
	))

	testCases := []struct {
		name      string
		mode      RangeMode
		exclusive bool
		want      []string
	}{
		{"begin", Begin(), false, []string{"a", "b"}},
		{"end", End(), false, []string{"d", "c"}},
		{"asc", FromAsc([]byte("b")), false, []string{"b", "c"}},
		{"asc exclusive", FromAsc([]byte("b")), true, []string{"c", "d"}},
		{"desc", FromDesc([]byte("c")), false, []string{"c", "b"}},
		{"desc exclusive", FromDesc([]byte("c")), true, []string{"b", "a"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pairs, err := c.Range(tc.mode, 2, tc.exclusive)
			require.NoError(t, err)
			assert.Equal(t, tc.want, keys(pairs))
		})
	}
}

func TestScan(t *testing.T) {
	c := newTestClient(t, startServer(t), "tcp")
	require.NoError(t, c.Use("scan"))

	var want []string
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("key-%02d", i)
		want = append(want, key)
		require.NoError(t, c.Set([]byte(key), []byte("v")))
	}

	for _, pageSize := range []uint16{1, 4, 5, 25, 100} {
		t.Run(fmt.Sprintf("page %d", pageSize), func(t *testing.T) {
			var seen []string
			require.NoError(t, c.Scan(pageSize, func(kv common.KV) error {
				seen = append(seen, string(kv.Key))
				return nil
			}))
			assert.Equal(t, want, seen)

			var reversed []string
			require.NoError(t, c.ScanReverse(pageSize, func(kv common.KV) error {
				reversed = append(reversed, string(kv.Key))
				return nil
			}))
			require.Len(t, reversed, len(want))
			assert.Equal(t, want[0], reversed[len(reversed)-1])
		})
	}

	stop := errors.New("stop")
	var count int
	err := c.Scan(3, func(common.KV) error {
		count++
		if count == 4 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 4, count)

	assert.ErrorIs(t, c.Scan(0, func(common.KV) error { return nil }), ErrInvalidData)
}

func TestDetach(t *testing.T) {
	e := startServer(t)
	first := newTestClient(t, e, "tcp")
	second := newTestClient(t, e, "unix")

	require.NoError(t, first.Use("x"))
	require.NoError(t, first.Set([]byte("k"), []byte("v")))
	require.NoError(t, second.Use("x"))

	require.NoError(t, first.Detach("x"))
	assert.Equal(t, "", first.Selected())
	_, err := first.Read([]byte("k"))
	assert.ErrorIs(t, err, ErrNoDBSelected)

	// the second client keeps its handle
	value, loaded, err := second.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, []byte("v"), value)

	names, err := second.ListDB()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestServerErrorResponse(t *testing.T) {
	c := newTestClient(t, startServer(t), "tcp")

	// selection is tracked locally, the server still rejects the read
	c.selected = "ghost"
	_, err := c.Read([]byte("k"))
	assert.True(t, IsServerError(err, "no db selected"))
}

// fixedTransport answers every request with resp
type fixedTransport struct {
	resp common.Message
}

func (f *fixedTransport) Connect(common.ClientConfig) error { return nil }

func (f *fixedTransport) Send(common.Message) (common.Message, error) { return f.resp, nil }

func (f *fixedTransport) Close() error { return nil }

func TestUnexpectedResponse(t *testing.T) {
	c, err := NewClient(common.ClientConfig{Endpoint: "nowhere", Transport: "fixed"}, &fixedTransport{resp: common.NewOkResponse("Ok.")})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListDB()
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	c.transport = &fixedTransport{resp: common.NewErrorResponse("boom")}
	_, err = c.ListDB()
	assert.True(t, IsServerError(err, "boom"), "%v", err)
}
