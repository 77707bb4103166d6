package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/maltedev/vendor-scraper/internal/api"
	"github.com/maltedev/vendor-scraper/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveOrigins *[]string

func init() {
	serveOrigins = serveCmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origins (default localhost).")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the scraper over HTTP.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		svc, err := service.Build(ctx, cfg, reg, log)
		if err != nil {
			return err
		}
		defer svc.Close()

		handlers := api.NewHandlers(svc, log)
		server := &http.Server{
			Addr: cfg.Server.Addr(),
			Handler: api.NewRouter(handlers, api.RouterOptions{
				AllowedOrigins: *serveOrigins,
				Gatherer:       reg,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			log.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("server shutdown failed", "error", err)
			}
		}()

		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		log.Info("server stopped")
		return nil
	},
}
