// Package server implements the mKV server: the per-connection session state
// machine and the wiring of registry, transports and metrics.
//
// Sessions:
//
// Every accepted connection gets its own session. A session starts without a
// selected database; Use attaches a database through the registry and selects
// it. Read, Write, Delete and the range commands work on the selected database
// and answer "no db selected" otherwise. Detach removes a database from the
// registry and clears the selection of the calling session if it matches.
// Other sessions keep working on the handle they already hold.
//
// Range commands return at most page-size pairs. The *Ex variants exclude a
// pair whose key equals the boundary key exactly, so a client can page
// through a database by repeating RangeFromAscEx with the last key it saw:
//
//	resp := RangeBegin(100)
//	for len(resp.Pairs) > 0 {
//	  last := resp.Pairs[len(resp.Pairs)-1].Key
//	  resp = RangeFromAscEx(100, last)
//	}
//
// Every failure that is not a broken frame is answered with an Error response
// and the connection stays open.
//
// Server:
//
// RPCServer runs all configured transports plus the optional metrics endpoint
// in one errgroup. Serve blocks until the context is cancelled or Close is
// called; Close drains all connections before it closes the registry.
//
// Metrics (VictoriaMetrics, Prometheus text format):
//
//   - mkv_requests_total{command}, mkv_request_errors_total{command}
//   - mkv_request_duration_seconds{command}
//   - mkv_connections_total, mkv_connections_active
//   - mkv_databases_attached, mkv_databases_open
//   - mkv_range_pairs
package server
