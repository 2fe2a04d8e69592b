package base

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/serializer"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const (
	readBufferSize  = 64 * 1024
	writeBufferSize = 64 * 1024

	// bounds of the back-off after a failed Accept
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	serializer serializer.IRPCSerializer
	factory    transport.SessionFactory
	config     common.ServerConfig

	mu       sync.Mutex // protects listener
	listener net.Listener
	closing  atomic.Bool

	// live connections by id, closed on shutdown
	conns  *xsync.MapOf[uint64, net.Conn]
	nextID atomic.Uint64
	wg     sync.WaitGroup

	// cancelled on Close, aborts rate limiter waits
	ctx    context.Context
	cancel context.CancelFunc
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport that decodes and
// encodes frames with s
func NewBaseServerTransport(connector IServerConnector, s serializer.IRPCSerializer) transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &serverTransport{
		connector:  connector,
		serializer: s,
		conns:      xsync.NewMapOf[uint64, net.Conn](),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(factory transport.SessionFactory) {
	t.factory = factory
}

func (t *serverTransport) GetName() string {
	return t.connector.GetName()
}

func (t *serverTransport) ActiveConnections() int {
	return t.conns.Size()
}

func (t *serverTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.factory == nil {
		return errors.New("no session handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s listener", t.connector.GetName())
	}

	t.mu.Lock()
	if t.closing.Load() {
		t.mu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Accept connections
	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// one failed accept must not stop the server, back off and retry
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			Logger.Errorf("Accept error on %s: %v; retrying in %s", t.connector.GetName(), err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if limit := t.config.MaxConnections; limit > 0 && t.conns.Size() >= limit {
			Logger.Warningf("Rejecting connection from %s: limit of %d connections reached", conn.RemoteAddr(), limit)
			conn.Close()
			continue
		}

		// registering under mu orders every connection before or after Close
		t.mu.Lock()
		if t.closing.Load() {
			t.mu.Unlock()
			conn.Close()
			return nil
		}
		id := t.nextID.Add(1)
		t.conns.Store(id, conn)
		t.wg.Add(1)
		t.mu.Unlock()

		// Handle the connection in a goroutine
		go t.handleConnection(id, conn)
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	if !t.closing.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return nil
	}
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()
	t.cancel()

	// closing the sockets unblocks every session waiting for a frame
	t.conns.Range(func(id uint64, conn net.Conn) bool {
		conn.Close()
		return true
	})
	t.wg.Wait()

	Logger.Infof("Stopped %s server", t.connector.GetName())
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection runs the request/response loop of one connection
func (t *serverTransport) handleConnection(id uint64, conn net.Conn) {
	defer t.wg.Done()
	defer t.conns.Delete(id)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		Logger.Warningf("Failed to apply socket options to connection %d: %v", id, err)
	}

	Logger.Infof("Connection %d from %s opened", id, remote)
	session := t.factory(remote)
	defer session.Close()

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	var limiter *rate.Limiter
	if t.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(t.config.RateLimit), t.config.RateLimit)
	}

	r := bufio.NewReaderSize(conn, readBufferSize)
	w := bufio.NewWriterSize(conn, writeBufferSize)

	for {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set read deadline on connection %d: %v", id, err)
				return
			}
		}

		req, err := t.serializer.Deserialize(r)
		if err != nil {
			t.logReadError(id, err)
			return
		}

		if limiter != nil {
			if err := limiter.Wait(t.ctx); err != nil {
				return
			}
		}

		start := time.Now()
		resp := session.Handle(req)
		Logger.Debugf("Connection %d: %s -> %s took %s", id, req.Type(), resp.Type(), time.Since(start))

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline on connection %d: %v", id, err)
				return
			}
		}
		if err := t.writeResponse(w, resp); err != nil {
			if !t.closing.Load() {
				Logger.Errorf("Failed to write response on connection %d: %v", id, err)
			}
			return
		}
	}
}

// writeResponse encodes resp and flushes it. A response the wire format cannot
// represent is replaced by an Error response.
func (t *serverTransport) writeResponse(w *bufio.Writer, resp common.Message) error {
	data, err := t.serializer.Serialize(resp)
	if errors.Is(err, serializer.ErrMessageTooLarge) {
		Logger.Warningf("Dropping %s response: %v", resp.Type(), err)
		data, err = t.serializer.Serialize(common.NewErrorResponse("response too large"))
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}

// logReadError logs why the read side of a connection ended
func (t *serverTransport) logReadError(id uint64, err error) {
	var netErr net.Error
	switch {
	case err == io.EOF:
		Logger.Infof("Connection %d closed by client", id)
	case t.closing.Load():
		Logger.Debugf("Connection %d closed by shutdown", id)
	case errors.As(err, &netErr) && netErr.Timeout():
		Logger.Infof("Connection %d closed after %d sec idle", id, t.config.TimeoutSecond)
	case errors.Is(err, serializer.ErrMalformedProtocol), errors.Is(err, serializer.ErrTextEncoding):
		Logger.Warningf("Closing connection %d on undecodable frame: %v", id, err)
	default:
		Logger.Errorf("Error reading from connection %d: %v", id, err)
	}
}
