package transport

import (
	"net"

	"github.com/ValentinKolb/mKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ISession holds the state of one client connection. The transport calls
// Handle for every decoded command, strictly in arrival order, and writes the
// returned response before reading the next command. Close is called exactly
// once when the connection ends.
type ISession interface {
	// Handle processes one command and returns its response. It never returns nil.
	Handle(req common.Message) (resp common.Message)
	// Close releases everything the session holds.
	Close()
}

// SessionFactory creates the session of a newly accepted connection.
// remote is the peer address as reported by the listener.
type SessionFactory func(remote string) ISession

// IRPCServerTransport is the interface for the listener side of the protocol.
type IRPCServerTransport interface {
	// RegisterHandler registers the factory called for every accepted connection.
	// It must be called before Listen.
	RegisterHandler(factory SessionFactory)
	// Listen binds the transport's endpoint and serves connections until Close is called.
	// It returns nil after Close and an error if the endpoint cannot be bound.
	Listen(config common.ServerConfig) error
	// Close stops accepting, closes every live connection and waits for their sessions to end.
	Close() error
	// ActiveConnections returns the number of connections currently served.
	ActiveConnections() int
	// Addr returns the bound address, or nil while the transport is not listening.
	Addr() net.Addr
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport.
// A client transport owns exactly one connection, so the server side session
// state (the selected database) lives as long as the transport is connected.
type IRPCClientTransport interface {
	// Connect opens the connection with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a command and waits for its response
	Send(req common.Message) (resp common.Message, err error)
	// Close closes the connection
	Close() error
}
