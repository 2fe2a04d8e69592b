// Package cmd implements the command-line interface of the mKV key-value
// server. It provides a hierarchical command structure with operations for
// running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the server (listeners, registry, storage engine, metrics)
//   - kv: One-shot key-value commands (get, set, del, range, scan, list-db,
//     current-db, detach) and the perf benchmark
//   - status: Health and metrics queries against the HTTP metrics endpoint
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable MKV_<FLAG> or in a
// .env / .env.local file. See mkv -help for a list of all commands.
package cmd
