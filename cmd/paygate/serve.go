package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/zk-paygate/internal/app"
	"github.com/tbourn/zk-paygate/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := log.Logger.WithContext(cmd.Context())
			gin.SetMode(cfg.GinMode)

			shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTel(sctx); err != nil {
					log.Warn().Err(err).Msg("otel shutdown")
				}
			}()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("close resources")
				}
			}()

			workersCtx, stopWorkers := context.WithCancel(ctx)
			workersDone := a.StartWorkers(workersCtx)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           a.Router(),
				ReadTimeout:       cfg.ReadTimeout,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       cfg.IdleTimeout,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}
			serveErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case err = <-serveErr:
			}

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(sctx); serr != nil {
				log.Error().Err(serr).Msg("http shutdown")
			}
			stopWorkers()
			select {
			case <-workersDone:
			case <-sctx.Done():
				log.Warn().Msg("workers did not stop before the shutdown deadline")
			}
			return err
		},
	}
}
