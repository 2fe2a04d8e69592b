package util

import (
	"strings"

	"github.com/ValentinKolb/mKV/rpc/client"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/ValentinKolb/mKV/rpc/transport/tcp"
	"github.com/ValentinKolb/mKV/rpc/transport/unix"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (MKV_<FLAG>)
	EnvPrefix = "mkv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read MKV_<FLAG> environment
// variables (dashes become underscores)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:1935", WrapString("The address of the mKV server (host:port for tcp, socket path for unix)"))

	key = "transport"
	cmd.PersistentFlags().String(key, "tcp", WrapString("The transport to use (tcp, unix)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "db"
	cmd.PersistentFlags().String(key, "", WrapString("The database to select before running the command"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which client logs will be output (debug, info, warn, error)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		Transport:     viper.GetString("transport"),
		TimeoutSecond: viper.GetInt("timeout"),
		TCPNoDelay:    viper.GetBool("tcp-nodelay"),
	}
}

// GetTransport creates the client transport named by name
func GetTransport(name string) (transport.IRPCClientTransport, error) {
	switch name {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, errors.Newf("invalid transport %s (expected tcp or unix)", name)
	}
}

// NewClient sets the client log level and connects a client as configured
// by the flags of SetupRPCClientFlags
func NewClient() (*client.Client, error) {
	if err := common.SetLogLevel(viper.GetString("log-level")); err != nil {
		return nil, err
	}
	return Connect()
}

// Connect opens a new connection and selects the database given by --db, if any
func Connect() (*client.Client, error) {
	config := GetClientConfig()
	t, err := GetTransport(config.Transport)
	if err != nil {
		return nil, err
	}

	c, err := client.NewClient(*config, t)
	if err != nil {
		return nil, err
	}

	if name := viper.GetString("db"); name != "" {
		if err := c.Use(name); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "failed to select %s", name)
		}
	}
	return c, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
