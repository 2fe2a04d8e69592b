// Package tcp implements the TCP socket transport of mKV. It provides the
// TCP specific connectors for the base package: listening on the configured
// TCP endpoint, dialing, and applying the TCP_NODELAY and keep-alive options.
//
// See the base package for the connection handling itself.
package tcp
