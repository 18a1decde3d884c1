// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ppacer/trends/archive"
	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/tasklog"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/exec"
	"github.com/ppacer/trends/notify"
	"github.com/ppacer/trends/scheduler"
	"github.com/ppacer/trends/trends"
	"github.com/ppacer/trends/warehouse"
	"github.com/ppacer/trends/warehouse/bigquery"
	"github.com/ppacer/trends/warehouse/memwh"
)

// app holds configuration and lazily opened resources of a single CLI
// command. Close releases all opened resources.
type app struct {
	cfg    AppConfig
	dryRun bool
	logger *slog.Logger

	dbClient *db.Client
	wh       warehouse.Client
	archive  *archive.Store
	closers  []func() error
}

func newApp(cfg AppConfig, dryRun bool, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &app{
		cfg:    cfg,
		dryRun: dryRun,
		logger: newLogger(cfg.Log, logOut),
	}, nil
}

func newLogger(cfg LogConfig, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	opts := slog.HandlerOptions{Level: scheduler.ParseLogLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(out, &opts))
	}
	return slog.New(slog.NewTextHandler(out, &opts))
}

// DB opens the run store.
func (a *app) DB() (*db.Client, error) {
	if a.dbClient != nil {
		return a.dbClient, nil
	}
	var client *db.Client
	var err error
	switch strings.ToLower(a.cfg.Database.Driver) {
	case "postgres":
		client, err = db.NewPostgresClientFromConnString(a.cfg.Database.DSN,
			a.logger)
	default:
		if a.cfg.Database.DSN == ":memory:" {
			client, err = db.NewSqliteInMemoryClient(a.logger)
		} else {
			client, err = db.NewSqliteClient(a.cfg.Database.DSN, a.logger)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open %s run store: %w",
			a.cfg.Database.Driver, err)
	}
	a.dbClient = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Warehouse returns BigQuery client or in-memory warehouse in dry-run mode.
func (a *app) Warehouse(ctx context.Context) (warehouse.Client, error) {
	if a.wh != nil {
		return a.wh, nil
	}
	if a.dryRun {
		a.logger.Warn("Dry run: queries are executed by in-memory warehouse")
		a.wh = memwh.New()
		return a.wh, nil
	}
	bqCfg := bigquery.DefaultConfig(a.cfg.Trends.Project)
	bqCfg.Location = a.cfg.Warehouse.Location
	bqCfg.CredentialsFile = a.cfg.Warehouse.CredentialsFile
	if a.cfg.Warehouse.JobIdPrefix != "" {
		bqCfg.JobIdPrefix = a.cfg.Warehouse.JobIdPrefix
	}
	client, err := bigquery.New(ctx, bqCfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.wh = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Notifier returns e-mail sender when SMTP is configured, otherwise alerts
// are logged.
func (a *app) Notifier() (notify.Sender, error) {
	logs := notify.NewLogsErr(a.logger)
	if a.cfg.Email == nil {
		return logs, nil
	}
	email, err := notify.NewEmail(*a.cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid e-mail config: %w", err)
	}
	return notify.NewMulti(logs, email), nil
}

// Archive opens run summaries store. It's nil when archive URL is not set.
func (a *app) Archive(ctx context.Context) (*archive.Store, error) {
	if a.archive != nil || a.cfg.Archive.URL == "" {
		return a.archive, nil
	}
	store, err := archive.Open(ctx, a.cfg.Archive.URL, a.logger)
	if err != nil {
		return nil, err
	}
	a.archive = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Dag builds github trends DAG on top of the app warehouse.
func (a *app) Dag(ctx context.Context) (dag.Dag, error) {
	wh, err := a.Warehouse(ctx)
	if err != nil {
		return dag.Dag{}, err
	}
	return trends.NewDag(a.cfg.Trends, wh)
}

// Runner creates DagRunner with persistence, alerts and archive wired.
func (a *app) Runner(ctx context.Context) (*scheduler.DagRunner, error) {
	dbClient, err := a.DB()
	if err != nil {
		return nil, err
	}
	notifier, err := a.Notifier()
	if err != nil {
		return nil, err
	}
	store, err := a.Archive(ctx)
	if err != nil {
		return nil, err
	}
	executor := exec.New(tasklog.NewDB(dbClient, nil, a.logger), a.logger,
		nil, nil)
	runner := scheduler.NewDagRunner(dbClient, executor, notifier,
		scheduler.DefaultDagRunnerConfig, a.logger)
	if store != nil {
		runner.WithArchive(store)
	}
	return runner, nil
}

// Close closes opened resources in reverse order.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
