package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/simtune/internal/driver"
	"github.com/GoSim-25-26J-441/simtune/internal/monitor"
	"github.com/GoSim-25-26J-441/simtune/internal/simulator"
	"github.com/GoSim-25-26J-441/simtune/internal/telemetry"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simtune", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var configPath, logLevel, method, simPath, httpAddr, grpcAddr string
	var maxEvals int
	fs.StringVar(&configPath, "config", "", "path to the YAML configuration (defaults built in)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&method, "method", "", "search method (nelder-mead, cmaes, buckshot, coordinate)")
	fs.StringVar(&simPath, "simulator", "", "simulator executable")
	fs.StringVar(&httpAddr, "http-addr", "", "progress HTTP listen address")
	fs.StringVar(&grpcAddr, "grpc-addr", "", "progress gRPC listen address")
	fs.IntVar(&maxEvals, "max-evaluations", -1, "evaluation budget (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		cfg = loaded
	}
	applyOverrides(cfg, logLevel, method, simPath, httpAddr, grpcAddr, maxEvals)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}

	log := logger.NewFormat(cfg.LogFormat, cfg.LogLevel, stderr)
	logger.SetDefault(log)

	tel, err := telemetry.Setup(cfg.Telemetry, stderr)
	if err != nil {
		log.Error("failed to set up telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown error", "error", err)
		}
	}()

	ctx, stop := interruptContext(context.Background())
	defer stop()

	store := monitor.NewStore(0)
	shutdown, err := startServers(cfg.Server, store, tel, log, stop)
	if err != nil {
		log.Error("failed to start monitor servers", "error", err)
		return 1
	}
	defer shutdown()

	d, err := driver.New(cfg, stdout, store, log)
	if err != nil {
		log.Error("failed to set up optimization", "error", err)
		return 1
	}

	if _, err := d.Run(ctx); err != nil {
		if errors.Is(err, simulator.ErrArgumentCount) {
			fmt.Fprintf(stderr, "cannot determine the simulator's argument count: %v\n", err)
			return 1
		}
		log.Error("optimization failed", "error", err)
		return 1
	}
	return 0
}

// interruptContext is canceled by the first SIGINT or SIGTERM. Default
// signal handling is restored right after, so a second signal terminates
// the process even while the final render is still running.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func applyOverrides(cfg *config.Config, logLevel, method, simPath, httpAddr, grpcAddr string, maxEvals int) {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if method != "" {
		cfg.Optimization.Method = method
	}
	if simPath != "" {
		cfg.Simulator.Path = simPath
	}
	if maxEvals >= 0 {
		cfg.Optimization.MaxEvaluations = maxEvals
	}
	if httpAddr != "" || grpcAddr != "" {
		if cfg.Server == nil {
			cfg.Server = &config.Server{}
		}
		if httpAddr != "" {
			cfg.Server.HTTPAddr = httpAddr
		}
		if grpcAddr != "" {
			cfg.Server.GRPCAddr = grpcAddr
		}
	}
}

// startServers starts the configured monitor endpoints. A serve failure
// calls stop so the optimization ends.
func startServers(cfg *config.Server, store *monitor.Store, tel *telemetry.Telemetry, log *slog.Logger, stop func()) (func(), error) {
	if cfg == nil {
		return func() {}, nil
	}

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen for gRPC on %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		monitor.RegisterMonitorServer(grpcServer, monitor.NewGRPCServer(store, log))
		go func() {
			log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", "error", err)
				stop()
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		var metrics http.Handler
		if tel.MetricsEnabled() {
			metrics = tel.Handler()
		}
		httpSrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           monitor.NewHTTPServer(store, metrics, log).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server error", "error", err)
				stop()
			}
		}()
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP shutdown error", "error", err)
			}
		}
	}, nil
}
