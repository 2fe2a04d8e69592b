// Package base implements the connection handling shared by every stream
// transport of mKV, independent of the socket family. The tcp and unix
// packages only contribute a connector that creates listeners or dials.
//
// Key Components:
//
//   - IServerConnector / IClientConnector: socket specific operations
//     (listen, dial, socket options).
//
//   - serverTransport: accepts connections, keeps a table of live connections
//     and runs one goroutine per connection. Each goroutine decodes a frame,
//     hands it to its ISession and writes the response before reading the
//     next frame, so responses leave in request order. Optional limits are an
//     idle read timeout, a maximum number of connections and a per-connection
//     request rate.
//
//   - clientTransport: a single connection used strictly request by request.
//
// Error Handling:
//
//	A frame that cannot be decoded closes the connection, the protocol has no
//	way to find the start of the next frame. A failed Accept is logged and the
//	accept loop continues after a short back-off. Close stops the listener,
//	closes all live connections and waits for their sessions to finish.
//
// Thread Safety:
//
//	All public methods are thread-safe. The client transport serializes
//	concurrent Send calls.
package base
