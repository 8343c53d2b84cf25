package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/colorsignal/session-controller/internal/httpapi"
	"github.com/colorsignal/session-controller/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// #region serve
func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP and websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			return serve(cmd.Context(), a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func serve(parent context.Context, a *app, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Component(a.logger, "serve")

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() { a.monitor.Watch(ctx) })

	if err := a.session.Connect(ctx); err != nil {
		// Not fatal: the UI shows the backend as unavailable and offers a retry.
		log.Warn().Err(err).Str("backend", a.cfg.Backend.Addr).Msg("initial connect failed")
	} else if a.cfg.Session.HydrateOnStart {
		if err := a.session.Hydrate(ctx); err != nil {
			log.Warn().Err(err).Msg("hydrate on start failed")
		}
	}

	// No WriteTimeout: /ws connections are long lived.
	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(a.session, a.registry, logging.Component(a.logger, "http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	})

	log.Info().Str("addr", addr).Str("backend", a.cfg.Backend.Addr).Msg("session controller listening")
	err := server.ListenAndServe()
	stop()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("session controller stopped")
	return nil
}

// #endregion serve
