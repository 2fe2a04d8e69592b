package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/mKV/cmd/util"
	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/db/engines/lvldb"
	"github.com/ValentinKolb/mKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/serializer"
	"github.com/ValentinKolb/mKV/rpc/server"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/ValentinKolb/mKV/rpc/transport/tcp"
	"github.com/ValentinKolb/mKV/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the mKV server",
		Long:    `Start the mKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is MKV_<flag> (e.g. MKV_DATA_DIR=/var/lib/mkv)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "tcp-endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:1935", cmdUtil.WrapString("The address of the TCP listener, empty to disable it"))

	key = "unix-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The path of the unix socket listener, empty to disable it"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("The root directory, every database is stored in <data-dir>/<name>"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, string(common.EngineLevelDB), cmdUtil.WrapString("The storage engine of every database (leveldb, pebble, memory). memory databases are lost on detach and shutdown"))

	key = "sync-writes"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Flush every write to disk before answering"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Idle timeout in seconds after which a connection is closed, 0 disables it"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of connections per listener, 0 for unlimited"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum requests per second per connection, 0 for unlimited"))

	key = "max-token-size"
	ServeCmd.PersistentFlags().Int(key, 64*1024, cmdUtil.WrapString("Largest accepted key or value in KiB, larger tokens close the connection. 0 for no limit beyond the wire format"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address of the HTTP listener serving /metrics and /health, empty to disable it"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The TCP keepalive period in seconds, 0 disables it"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	engine, err := common.ParseEngine(viper.GetString("engine"))
	if err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TCPEndpoint = viper.GetString("tcp-endpoint")
	serveCmdConfig.UnixEndpoint = viper.GetString("unix-endpoint")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Engine = engine
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.RateLimit = viper.GetInt("rate-limit")
	serveCmdConfig.MaxTokenSizeKiB = viper.GetInt("max-token-size")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.TCPKeepAliveSecond = viper.GetInt("tcp-keepalive")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return serveCmdConfig.Validate()
}

// run starts the mKV server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(*serveCmdConfig); err != nil {
		return err
	}

	// memory databases never touch the data directory
	root := serveCmdConfig.DataDir
	if serveCmdConfig.Engine == common.EngineMemory {
		root = ""
	}

	reg, err := registry.New(root, engineFactory(serveCmdConfig.Engine, viper.GetBool("sync-writes")))
	if err != nil {
		return err
	}

	// one serializer per listener, the token guard applies to both
	var transports []transport.IRPCServerTransport
	if serveCmdConfig.TCPEndpoint != "" {
		s := serializer.NewBinarySerializerWithLimit(serveCmdConfig.MaxTokenSize())
		transports = append(transports, tcp.NewTCPServerTransport(s))
	}
	if serveCmdConfig.UnixEndpoint != "" {
		s := serializer.NewBinarySerializerWithLimit(serveCmdConfig.MaxTokenSize())
		transports = append(transports, unix.NewUnixServerTransport(s))
	}

	serv := server.NewRPCServer(*serveCmdConfig, reg, transports...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serv.Serve(ctx)
}

// engineFactory returns the factory opening the databases of the registry
func engineFactory(engine common.Engine, syncWrites bool) db.Factory {
	switch engine {
	case common.EnginePebble:
		return pebbledb.Factory(&pebbledb.DBOptions{SyncWrites: syncWrites})
	case common.EngineMemory:
		return lvldb.MemoryFactory()
	default:
		return lvldb.Factory(&lvldb.DBOptions{SyncWrites: syncWrites})
	}
}
