// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/tasklog"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/exec"
	"github.com/ppacer/trends/metrics"
	"github.com/ppacer/trends/notify"
)

// Scheduler is the main long-running component. It synchronizes DAGs with
// the database, watches their schedules, starts DAG runs and serves HTTP API
// with the current state.
type Scheduler struct {
	dbClient *db.Client
	config   Config
	notifier notify.Sender
	archive  ArchiveStore
	metrics  *metrics.Metrics
	taskLogs tasklog.Factory
	logger   *slog.Logger

	runner  *DagRunner
	watcher *Watcher
	done    chan struct{}
	once    sync.Once
}

// New creates new Scheduler. When notifier is nil, notifications are only
// logged. When logger is nil, default logger is used (see ENV_LOG_LEVEL).
func New(
	dbClient *db.Client, config Config, notifier notify.Sender,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Scheduler{
		dbClient: dbClient,
		config:   config,
		notifier: notifier,
		taskLogs: tasklog.NewDB(dbClient, nil, logger),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// WithArchive sets store for summaries of finished DAG runs.
func (s *Scheduler) WithArchive(store ArchiveStore) *Scheduler {
	s.archive = store
	return s
}

// WithMetrics sets Prometheus metrics. Those are also exposed on /metrics
// endpoint.
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Runner returns DagRunner used by the Scheduler. It's nil before Start.
func (s *Scheduler) Runner() *DagRunner {
	return s.runner
}

// Start starts the Scheduler. DAGs are synchronized with the database and
// DAG runs interrupted by previous shutdown are marked as CANCELLED. The
// watcher does not start those dates again, they can be rerun manually (CLI
// run or the trigger endpoint). Then the watcher is started in a separate
// goroutine. Returned HTTP handler serves the Scheduler API. Cancelling the
// context stops the Scheduler, see Done.
func (s *Scheduler) Start(ctx context.Context, dags dag.Registry) (http.Handler, error) {
	startCtx, cancel := context.WithTimeout(ctx, s.config.StartupContextTimeout)
	defer cancel()

	for _, d := range dags.List() {
		if !d.IsAcyclic() {
			return nil, fmt.Errorf("DAG %s has a cycle", string(d.Id))
		}
		updated, err := s.dbClient.SyncDag(startCtx, d)
		if err != nil {
			return nil, fmt.Errorf("cannot sync DAG %s: %w", string(d.Id), err)
		}
		s.logger.Info("DAG synchronized", "dagId", string(d.Id), "updated",
			updated)
		if err := s.cancelInterrupted(startCtx, d.Id); err != nil {
			return nil, err
		}
	}

	executor := exec.New(s.taskLogs, s.logger, nil, s.metrics)
	s.runner = NewDagRunner(s.dbClient, executor, s.notifier,
		s.config.DagRunnerConfig, s.logger).
		WithMetrics(s.metrics)
	if s.archive != nil {
		s.runner.WithArchive(s.archive)
	}
	s.watcher = NewWatcher(s.runner, s.dbClient, s.config.WatcherConfig,
		s.logger)

	api := NewAPI(ctx, dags, s.dbClient, s.runner, s.taskLogs, s.metrics,
		s.config.DagRunCacheLen, s.logger)

	go func() {
		defer s.once.Do(func() { close(s.done) })
		s.watcher.Watch(ctx, dags.List())
		api.Wait()
		s.logger.Info("Scheduler stopped")
	}()
	return api.Handler(), nil
}

// Done returns a channel which is closed after the Scheduler stopped and
// all DAG runs started by the watcher or triggered via the API are finished.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) cancelInterrupted(ctx context.Context, dagId dag.Id) error {
	runs, err := s.dbClient.ReadDagRunsNotFinished(ctx, string(dagId))
	if err != nil {
		return fmt.Errorf("cannot read not finished DAG runs for %s: %w",
			string(dagId), err)
	}
	for _, run := range runs {
		uErr := s.dbClient.UpdateDagRunStatus(ctx, run.RunId,
			dag.RunCancelled.String())
		if uErr != nil {
			return fmt.Errorf("cannot cancel interrupted DAG run %d: %w",
				run.RunId, uErr)
		}
		s.logger.Warn("Interrupted DAG run marked as cancelled", "dagId",
			string(dagId), "execTs", run.ExecTs, "runId", run.RunId)
	}
	return nil
}
