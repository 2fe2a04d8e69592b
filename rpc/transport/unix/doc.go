// Package unix implements the Unix domain socket transport of mKV, for
// clients running on the same machine as the server.
//
// The server connector removes a stale socket file before binding; the
// listener removes the file again when it is closed. Everything else is
// inherited from the base package.
package unix
