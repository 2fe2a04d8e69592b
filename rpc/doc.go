// Package rpc provides the network layer of the mKV server: the wire protocol,
// its transports and both ends of a connection.
//
// The package is organized into several subpackages:
//
//   - common: The Message types of the protocol, server and client
//     configuration, and logging.
//
//   - serializer: The binary frame codec (tag byte, u32 length-prefixed tokens,
//     u16 counts) converting between Message values and byte streams.
//
//   - transport: Connection handling over TCP and unix sockets plus the HTTP
//     metrics endpoint. A transport runs one session per connection.
//
//   - server: The session state machine (selected database, command dispatch,
//     paginated ranges) and the server tying transports, registry and metrics together.
//
//   - client: A Go client with one session per connection.
package rpc
