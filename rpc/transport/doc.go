// Package transport defines the interfaces between the network listeners and
// the protocol sessions of the mKV server, and the client side counterpart.
//
// Key Components:
//
//   - IRPCServerTransport: accepts connections on one endpoint and drives one
//     ISession per connection through the decode, handle, encode loop.
//
//   - ISession / SessionFactory: the per-connection state machine, implemented
//     by the server package.
//
//   - IRPCClientTransport: one connection to a server, sending one command at a
//     time and waiting for its response.
//
// Implementations live in the tcp and unix subpackages and share their logic
// through the base package.
package transport
