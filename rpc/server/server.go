package server

import (
	"context"
	"io"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/ValentinKolb/mKV/rpc/transport"
	"github.com/ValentinKolb/mKV/rpc/transport/http"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("rpc")

// ErrShuttingDown is reported by Health once Close was called
var ErrShuttingDown = errors.New("server is shutting down")

// RPCServer serves one registry on any number of transports.
type RPCServer struct {
	config     common.ServerConfig
	registry   *registry.Registry
	transports []transport.IRPCServerTransport
	httpServer *http.MetricsServer
	metrics    *serverMetrics

	sessions  atomic.Int64
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewRPCServer creates a new RPC server
// It takes a config, the registry shared by all connections and the transports to listen on.
// The server owns the registry and closes it on Close.
//
// Usage:
//
//	reg, _ := registry.New(config.DataDir, lvldb.Factory(nil))
//	s := server.NewRPCServer(
//		config,
//		reg,
//		tcp.NewTCPServerTransport(serializer.NewBinarySerializer()),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	reg *registry.Registry,
	transports ...transport.IRPCServerTransport,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		registry:   reg,
		transports: transports,
		metrics:    newServerMetrics(),
		closed:     make(chan struct{}),
	}

	s.metrics.gauge("mkv_connections_active", func() float64 { return float64(s.sessions.Load()) })
	s.metrics.gauge("mkv_databases_attached", func() float64 { return float64(reg.Len()) })
	s.metrics.gauge("mkv_databases_open", func() float64 { return float64(reg.OpenCount()) })

	for _, t := range transports {
		t.RegisterHandler(s.NewSession)
	}

	if config.MetricsEndpoint != "" {
		s.httpServer = http.NewMetricsServer(config.MetricsEndpoint, s.WriteMetrics, s.Health, config.LogLevel)
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return s
}

// NewSession creates the session of a new connection. It is registered as
// the session factory of every transport.
func (s *RPCServer) NewSession(remote string) transport.ISession {
	s.sessions.Add(1)
	s.metrics.connections.Inc()
	return newSession(remote, s.registry, s.metrics, func() { s.sessions.Add(-1) })
}

// Serve starts all transports and the metrics endpoint and blocks until ctx
// is cancelled, Close is called or one of the listeners fails. In every case
// everything is shut down before Serve returns.
func (s *RPCServer) Serve(ctx context.Context) error {
	if len(s.transports) == 0 {
		return errors.New("no transport configured")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, t := range s.transports {
		t := t
		g.Go(func() error {
			return errors.Wrapf(t.Listen(s.config), "%s transport", t.GetName())
		})
	}

	if s.httpServer != nil {
		g.Go(func() error {
			return errors.Wrap(s.httpServer.Listen(), "metrics endpoint")
		})
	}

	// tear everything down on cancellation or the first listener error
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.closed:
		}
		return s.Close()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops accepting connections, closes all live connections, waits for
// their sessions to release their databases and finally closes the registry.
// It is safe to call more than once.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		Logger.Infof("Shutting down RPC Server")

		var errs error
		for _, t := range s.transports {
			if err := t.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "close %s transport", t.GetName()))
			}
		}
		if s.httpServer != nil {
			if err := s.httpServer.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "close metrics endpoint"))
			}
		}
		if err := s.registry.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "close registry"))
		}

		s.closeErr = errs
		close(s.closed)
		Logger.Infof("RPC Server stopped")
	})
	return s.closeErr
}

// Health returns nil while the server accepts requests
func (s *RPCServer) Health() error {
	if s.closing.Load() {
		return ErrShuttingDown
	}
	return nil
}

// WriteMetrics writes all server metrics in Prometheus text format
func (s *RPCServer) WriteMetrics(w io.Writer) {
	s.metrics.write(w)
}

// Transports returns the transports of the server
func (s *RPCServer) Transports() []transport.IRPCServerTransport {
	return s.transports
}
