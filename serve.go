package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kcz17/statset/config"
	"github.com/kcz17/statset/exporting"
	"github.com/kcz17/statset/filters"
	"github.com/kcz17/statset/registry"
	"github.com/kcz17/statset/serving"
	"github.com/kcz17/statset/statistic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func getCmdServe(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the timing proxy and the export loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(conf)
		},
	}
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("expected valid logging.level; got err = %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

func serve(conf *config.Config) error {
	logger, err := newLogger(*conf.Logging.Level)
	if err != nil {
		return err
	}

	unit, err := statistic.ParseTimeUnit(*conf.Timers.Unit)
	if err != nil {
		return err
	}
	exclude, err := filters.ParseRequestFilter(conf.Timers.Exclude)
	if err != nil {
		return err
	}
	logger.WithField("rules", exclude.Len()).Debug("requests excluded from timing")

	exporter, err := newExporter(conf.Exporting, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			logger.WithError(err).Error("could not close exporters")
		}
	}()

	reg := registry.New()
	loop := exporting.NewLoop(&exporting.LoopOptions{
		Registry:  reg,
		Exporter:  exporter,
		Logger:    logger,
		Interval:  time.Duration(*conf.Exporting.Interval * float64(time.Second)),
		SkipEmpty: *conf.Exporting.SkipEmpty,
	})

	server := serving.NewServer(&serving.ServerOptions{
		Logger:       logger,
		FrontendAddr: ":" + strconv.Itoa(*conf.Proxying.FrontendPort),
		BackendAddr:  *conf.Proxying.BackendHost + ":" + strconv.Itoa(*conf.Proxying.BackendPort),
		MaxConns:     *conf.Proxying.MaxConns,
		Registry:     reg,
		TimerName:    *conf.Timers.Name,
		Unit:         unit,
		GroupByPath:  *conf.Timers.GroupByPath,
		MaxPaths:     *conf.Timers.MaxPaths,
		Exclude:      exclude,
	})
	api := &serving.APIServer{Registry: reg, Flusher: loop}

	if err := loop.Start(); err != nil {
		return fmt.Errorf("expected loop.Start() returns nil err; got err = %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	go func() {
		apiAddr := ":" + strconv.Itoa(*conf.API.Port)
		logger.WithField("addr", apiAddr).Info("api listening")
		if err := api.ListenAndServe(apiAddr); err != nil {
			errCh <- fmt.Errorf("api server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case serveErr = <-errCh:
		logger.WithError(serveErr).Error("server stopped unexpectedly")
	}

	if err := server.Shutdown(); err != nil {
		logger.WithError(err).Warn("could not shut down proxy")
	}
	if err := api.Shutdown(); err != nil && !errors.Is(err, serving.ErrServerNotStarted) {
		logger.WithError(err).Warn("could not shut down api")
	}

	// Stopping the loop exports whatever the last window recorded.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := loop.Stop(ctx); err != nil {
		logger.WithError(err).Error("final export failed")
	}

	return serveErr
}
