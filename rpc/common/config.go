package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// Engine names the ordered storage engine backing every database.
type Engine string

const (
	EngineLevelDB Engine = "leveldb"
	EnginePebble  Engine = "pebble"
	EngineMemory  Engine = "memory"
)

// ParseEngine converts a flag value to an Engine.
func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(s)); e {
	case EngineLevelDB, EnginePebble, EngineMemory:
		return e, nil
	default:
		return "", errors.Newf("invalid engine: %s. must be one of leveldb, pebble, memory", s)
	}
}

// ServerConfig holds all configuration parameters of the server.
type ServerConfig struct {
	// Listener endpoints, an empty value disables the listener
	TCPEndpoint  string
	UnixEndpoint string

	// TCP socket options
	TCPNoDelay         bool
	TCPKeepAliveSecond int

	// Storage
	DataDir string
	Engine  Engine

	// Connection handling
	TimeoutSecond   int64 // idle read timeout per connection, 0 = none
	MaxConnections  int   // 0 = unlimited
	RateLimit       int   // requests per second per connection, 0 = unlimited
	MaxTokenSizeKiB int   // decoder guard, 0 = no guard beyond the wire format

	// HTTP metrics and health endpoint, empty = disabled
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// MaxTokenSize returns the decoder token guard in bytes.
func (c *ServerConfig) MaxTokenSize() int {
	if c.MaxTokenSizeKiB <= 0 {
		return 0
	}
	return c.MaxTokenSizeKiB * 1024
}

// Validate checks the configuration for values the server cannot start with.
func (c *ServerConfig) Validate() error {
	if c.TCPEndpoint == "" && c.UnixEndpoint == "" {
		return errors.New("at least one of tcp-endpoint or unix-endpoint must be set")
	}
	if c.Engine != EngineMemory && c.DataDir == "" {
		return errors.New("data-dir must be set")
	}
	if _, err := ParseEngine(string(c.Engine)); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxConnections < 0 || c.RateLimit < 0 || c.MaxTokenSizeKiB < 0 || c.TimeoutSecond < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orNone := func(v string) string {
		if v == "" {
			return "(disabled)"
		}
		return v
	}

	orUnlimited := func(v int) string {
		if v == 0 {
			return "unlimited"
		}
		return strconv.Itoa(v)
	}

	// Listener settings
	addSection("RPC Server")
	addField("TCP Endpoint", orNone(c.TCPEndpoint))
	addField("Unix Endpoint", orNone(c.UnixEndpoint))
	addField("TCP NoDelay", strconv.FormatBool(c.TCPNoDelay))
	addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCPKeepAliveSecond))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Connections", orUnlimited(c.MaxConnections))
	addField("Rate Limit", orUnlimited(c.RateLimit))
	addField("Max Token Size", orUnlimited(c.MaxTokenSizeKiB)+" KiB")

	// Storage
	addSection("Storage")
	addField("Engine", string(c.Engine))
	addField("Data Directory", c.DataDir)

	// Metrics
	addSection("Metrics")
	addField("Endpoint", orNone(c.MetricsEndpoint))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	Transport     string // tcp or unix
	TimeoutSecond int
	TCPNoDelay    bool
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Transport", c.Transport))
	sb.WriteString(fmt.Sprintf("  %-22s: %d sec\n", "Timeout", c.TimeoutSecond))

	return sb.String()
}
