package base

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/serializer"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrNotConnected is returned by Send before Connect and after Close or a broken connection
var ErrNotConnected = errors.New("not connected")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector  IClientConnector
	serializer serializer.IRPCSerializer
	config     common.ClientConfig

	mu   sync.Mutex // serializes requests, the protocol has no request ids
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector, s serializer.IRPCSerializer) transport.IRPCClientTransport {
	return &clientTransport{
		connector:  connector,
		serializer: s,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return errors.New("no endpoint provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Close an existing connection, its session state is lost anyway
	t.closeLocked()
	t.config = config

	conn, err := t.connector.Connect(config.Endpoint, t.timeout())
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", config.Endpoint)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return errors.Wrapf(err, "failed to upgrade connection to %s", config.Endpoint)
	}

	t.conn = conn
	t.r = bufio.NewReaderSize(conn, readBufferSize)
	t.w = bufio.NewWriterSize(conn, writeBufferSize)

	Logger.Infof("Connected to %s using %s transport", config.Endpoint, t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(req common.Message) (common.Message, error) {
	data, err := t.serializer.Serialize(req)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, ErrNotConnected
	}

	if timeout := t.timeout(); timeout > 0 {
		if err := t.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, t.fail(err)
		}
	}

	if _, err := t.w.Write(data); err != nil {
		return nil, t.fail(err)
	}
	if err := t.w.Flush(); err != nil {
		return nil, t.fail(err)
	}

	resp, err := t.serializer.Deserialize(t.r)
	if err != nil {
		return nil, t.fail(err)
	}
	if !resp.Type().IsResponse() {
		return nil, t.fail(errors.Wrapf(serializer.ErrMalformedProtocol, "server sent command %s", resp.Type()))
	}
	return resp, nil
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// fail drops the connection after an I/O or decode error. The stream position
// is unknown afterwards, so the connection cannot be reused.
func (t *clientTransport) fail(err error) error {
	Logger.Warningf("Dropping connection to %s: %v", t.config.Endpoint, err)
	t.closeLocked()
	return errors.Wrap(err, "request failed")
}

func (t *clientTransport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn, t.r, t.w = nil, nil, nil
	return err
}
