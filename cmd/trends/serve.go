// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/metrics"
	"github.com/ppacer/trends/scheduler"
	"github.com/ppacer/trends/timeutils"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler with HTTP status API",
		Long: `Start the scheduler. It runs the DAG on its daily schedule, catches up
logical dates missed since the latest run and serves HTTP API with DAG runs,
task logs and Prometheus metrics. SIGINT or SIGTERM stops the scheduler,
in-flight DAG runs are cancelled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				c.app.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT,
				syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	a := c.app
	d, err := a.Dag(ctx)
	if err != nil {
		return err
	}
	dbClient, err := a.DB()
	if err != nil {
		return err
	}
	notifier, err := a.Notifier()
	if err != nil {
		return err
	}
	store, err := a.Archive(ctx)
	if err != nil {
		return err
	}

	schedCfg := scheduler.DefaultConfig
	schedCfg.WatcherConfig.WatchInterval = a.cfg.Server.WatchInterval
	schedCfg.WatcherConfig.MaxConcurrentRuns = a.cfg.Server.MaxConcurrentRuns
	sched := scheduler.New(dbClient, schedCfg, notifier, a.logger).
		WithMetrics(metrics.New())
	if store != nil {
		sched.WithArchive(store)
	}
	dags := dag.Registry{}
	if err := dags.Add(d); err != nil {
		return err
	}
	handler, err := sched.Start(ctx, dags)
	if err != nil {
		return fmt.Errorf("cannot start scheduler: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Scheduler HTTP API started", "port", a.cfg.Server.Port)
		if lErr := server.ListenAndServe(); lErr != nil && !errors.Is(lErr, http.ErrServerClosed) {
			serverErr <- lErr
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case lErr := <-serverErr:
		if lErr != nil {
			return fmt.Errorf("HTTP server failed: %w", lErr)
		}
	}

	a.logger.Warn("Shutting down the scheduler")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		shutdownTimeout)
	defer cancel()
	if sErr := server.Shutdown(shutdownCtx); sErr != nil {
		a.logger.Error("HTTP server shutdown failed", "err", sErr.Error())
	}
	select {
	case <-sched.Done():
	case <-shutdownCtx.Done():
		return errors.New("scheduler did not stop before shutdown timeout")
	}
	return nil
}

func (c *cli) triggerCmd() *cobra.Command {
	var date time.Time
	var url string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask running scheduler to start DAG run for logical date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := scheduler.NewClient(url, nil, c.app.logger,
				scheduler.DefaultClientConfig)
			in := scheduler.TriggerInput{Date: timeutils.ToDateString(date)}
			if err := client.TriggerDagRun(in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DAG run for %s triggered\n",
				in.Date)
			return nil
		},
	}
	dateVar(cmd.Flags(), &date, "date", "Logical date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080",
		"Scheduler URL")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
