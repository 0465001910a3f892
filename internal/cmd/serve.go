package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"hapdb/internal/api"
	"hapdb/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a database over a read-only HTTP API",
	Long: `Open a database read-only and serve its records, ingest runs and
statistics as JSON, plus Prometheus metrics on /metrics.

Examples:
  hapdb serve --db haproxy.log.db
  hapdb serve --db haproxy.log.db --http-addr 127.0.0.1:9102`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":9102", "listen address")
	cobra.CheckErr(viper.BindPFlag("http_addr", serveCmd.Flags().Lookup("http-addr")))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if cfg.DBPath == "" {
		return errors.New("serve needs --db or db_path")
	}

	store, err := storage.OpenReadOnly(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newServeMux(store, cfg.DBPath, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Msg("serving records API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down records API")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func newServeMux(store storage.Store, dbPath string, reg *prometheus.Registry) *http.ServeMux {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	api.NewAPI(store, dbPath).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
