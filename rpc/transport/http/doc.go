// Package http implements the optional operational HTTP endpoint of the mKV
// server. The key-value protocol itself is only spoken over the tcp and unix
// transports; this package serves what monitoring needs:
//
//   - GET /metrics: all server metrics in Prometheus text format
//   - GET /health: 200 "ok" while the server accepts requests, 503 otherwise
//
// Key Components:
//
//   - MetricsServer: the HTTP server, started and stopped together with the
//     protocol listeners. Requests are logged at debug level.
//
//   - MetricsClient: reads both endpoints, used by the CLI.
package http
