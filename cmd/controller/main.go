package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/colorsignal/session-controller/internal/codec"
	"github.com/colorsignal/session-controller/internal/config"
	"github.com/colorsignal/session-controller/internal/connection"
	"github.com/colorsignal/session-controller/internal/feedback"
	"github.com/colorsignal/session-controller/internal/logging"
	"github.com/colorsignal/session-controller/internal/metrics"
	"github.com/colorsignal/session-controller/internal/session"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "controller",
		Short:         "Big/Small signal session controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./colorsignal.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newReplCmd(&configPath),
		newJournalCmd(&configPath),
	)
	return root
}

// #endregion main

// #region app
// app is everything a command needs to drive one session.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	monitor  *connection.Monitor
	session  *session.Session
	journal  *logging.Journal
}

func newApp(configPath string, pretty bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty || pretty)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	a := &app{cfg: cfg, logger: logger, registry: reg}

	opts := []session.Option{
		session.WithLogger(logging.Component(logger, "session")),
		session.WithMetrics(m),
	}
	if cfg.Journal.Path != "" {
		j, err := logging.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.journal = j
		opts = append(opts, session.WithRecorder(j))
	}

	addr := cfg.Backend.Addr
	a.monitor = connection.NewMonitor(cfg.Backend.Identity, func(_ context.Context, identity string) (connection.Handle, error) {
		logger.Debug().Str("addr", addr).Str("identity", identity).Msg("dialing prediction service")
		c, err := codec.NewCodecClient(addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, connection.WithLogger(logging.Component(logger, "connection")))

	policy, err := feedback.ParsePolicy(cfg.Session.FeedbackPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session = session.New(session.Config{
		Capacity:       cfg.Session.Capacity,
		PatternWindow:  cfg.Session.PatternWindow,
		FeedbackPolicy: policy,
		RequestTimeout: cfg.Backend.RequestTimeout,
	}, a.monitor, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.monitor != nil {
		if err := a.monitor.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close connection monitor")
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close journal")
		}
	}
}

// #endregion app
