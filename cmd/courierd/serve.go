package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/courierhq/courier/pkg/api"
	"github.com/courierhq/courier/pkg/config"
	"github.com/courierhq/courier/pkg/metrics"
	"github.com/courierhq/courier/pkg/server"
	"github.com/courierhq/courier/pkg/storage"
)

func serveCmd() *cobra.Command {
	var (
		port      int
		host      string
		portFile  string
		dbPath    string
		apiPort   int
		ioTimeout time.Duration
		maxConns  int
		logLevel  string
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the messaging server",
		Long: `Run the messaging server.

The listen port is resolved in order: the --port flag, the first line
of the port file, then the built-in default. The admin API serves
health, status and Prometheus metrics over HTTP; set --api-port=0 to
disable it.

Examples:
  courierd serve
  courierd serve --port=2468 --db=/var/lib/courier/courier.db
  courierd serve --api-port=0 --log-json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				port:      port,
				host:      host,
				portFile:  portFile,
				dbPath:    dbPath,
				apiPort:   apiPort,
				ioTimeout: ioTimeout,
				maxConns:  maxConns,
				logLevel:  logLevel,
				logJSON:   logJSON,
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from port file)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host/interface to bind (default all interfaces)")
	cmd.Flags().StringVar(&portFile, "port-file", config.DefaultPortFile, "Path to the port file")
	cmd.Flags().StringVar(&dbPath, "db", "courier.db", "Path to the sqlite database")
	cmd.Flags().IntVar(&apiPort, "api-port", 8080, "Admin API port (0 disables)")
	cmd.Flags().DurationVar(&ioTimeout, "io-timeout", 30*time.Second, "Per-read/write deadline on client connections")
	cmd.Flags().IntVar(&maxConns, "max-conns", 0, "Maximum concurrent connections (0 for unlimited)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	return cmd
}

type serveOptions struct {
	port      int
	host      string
	portFile  string
	dbPath    string
	apiPort   int
	ioTimeout time.Duration
	maxConns  int
	logLevel  string
	logJSON   bool
}

func runServe(opts serveOptions) error {
	fmt.Print(banner)
	fmt.Println()

	log, err := config.SetupLogger(opts.logLevel, opts.logJSON)
	if err != nil {
		return err
	}

	port, err := config.ResolvePort(opts.port, opts.portFile, log)
	if err != nil {
		return err
	}

	// a store that cannot open is fatal; everything after this point
	// survives per-request storage errors
	store, err := storage.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", opts.dbPath, err)
	}
	defer store.Close()
	log.WithField("path", opts.dbPath).Info("store opened")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	cfg := server.DefaultConfig()
	cfg.Host = opts.host
	cfg.Port = port
	cfg.IOTimeout = opts.ioTimeout
	cfg.MaxConns = opts.maxConns

	core := server.New(cfg, store)
	core.SetLogger(log)
	core.AttachMetrics(m)

	if err := core.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.WithField("addr", core.Addr().String()).Info("server listening")

	// the admin API runs until the shutdown signal cancels it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiDone := make(chan error, 1)
	if opts.apiPort > 0 {
		apiCfg := api.DefaultConfig()
		apiCfg.Host = opts.host
		apiCfg.Port = opts.apiPort

		admin := api.NewServer(core, store, apiCfg)
		admin.SetLogger(log)
		admin.AttachMetricsGatherer(registry)

		go func() { apiDone <- admin.Start(ctx) }()
	} else {
		log.Info("admin API disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	if opts.apiPort > 0 {
		if err := <-apiDone; err != nil {
			log.WithError(err).Warn("admin API shutdown error")
		}
	}

	if err := core.Stop(); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}

	log.Info("goodbye")
	return nil
}
