package main

import (
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nlimpid/hbrest/config"
	"github.com/nlimpid/hbrest/logger"
	"github.com/nlimpid/hbrest/rest"
)

type app struct {
	out io.Writer
	in  io.Reader

	configPath  string
	endpoint    string
	logLevel    string
	metricsAddr string

	cfg     config.Config
	reg     *prometheus.Registry
	metrics *rest.Metrics
	server  *http.Server
}

func newApp(out io.Writer, in io.Reader) *app {
	reg := prometheus.NewRegistry()
	return &app{
		out:     out,
		in:      in,
		cfg:     config.Default(),
		reg:     reg,
		metrics: rest.NewMetrics(reg),
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hbscan",
		Short: "Scan tables of an HBase REST gateway",
		Long: `hbscan runs server-side scanners against an HBase-style REST gateway.

Settings come from --config, then HBREST_* environment variables
(HBREST_ENDPOINT, HBREST_LOG_LEVEL, HBREST_SCAN_BATCH, ...), then flags.

Examples:
  hbscan scan --table users --start a --end m
  hbscan scan --table users --filter-file filter.json --split g --split p
  hbscan export --table users --db users.duckdb
  hbscan filter validate filter.json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (yaml, json, toml)")
	root.PersistentFlags().StringVar(&a.endpoint, "endpoint", "", "Gateway base URL")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	root.AddCommand(a.scanCmd(), a.exportCmd(), a.filterCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.Load(config.EnvPrefix, a.configPath, &a.cfg); err != nil {
		return err
	}
	if a.endpoint != "" {
		a.cfg.Endpoint = a.endpoint
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger.Init(a.cfg.Log)

	if a.metricsAddr != "" {
		ln, err := net.Listen("tcp", a.metricsAddr)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
		a.server = &http.Server{Handler: mux}
		go func() {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}
	return nil
}

// close stops the metrics server, if one was started.
func (a *app) close() error {
	if a.server == nil {
		return nil
	}
	return a.server.Close()
}

func (a *app) client() (*rest.Client, error) {
	return rest.FromConfig(a.cfg, rest.WithMetrics(a.metrics))
}
