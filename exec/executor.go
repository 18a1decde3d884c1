// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package exec defines Executor which runs single task attempts in-process.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/tasklog"
	"github.com/ppacer/trends/metrics"
)

var (
	// ErrTaskTimeout is returned when task attempt exceeded its configured
	// timeout.
	ErrTaskTimeout = errors.New("task execution timed out")

	// ErrTaskPanicked is returned when task panicked during execution.
	ErrTaskPanicked = errors.New("task panicked")
)

// Executor executes task attempts. Each attempt gets its own context with
// task timeout applied and its own logger which writes into task logs.
// Executor limits number of concurrently running attempts.
type Executor struct {
	config   Config
	taskLogs tasklog.Factory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	slots    chan struct{}
}

// Executor configuration.
type Config struct {
	MaxGoroutineCount int
}

// Setup default configuration values.
func defaultConfig() Config {
	return Config{
		MaxGoroutineCount: 1000,
	}
}

// New creates new Executor instance. When config is nil, then default
// configuration values will be used. When logger is nil, then slog for
// stdout with WARN severity level will be used. When taskLogs is nil, task
// logs goes to the Executor logger. Metrics can be nil.
func New(taskLogs tasklog.Factory, logger *slog.Logger, config *Config, m *metrics.Metrics) *Executor {
	var cfg Config
	if config != nil {
		cfg = *config
	} else {
		cfg = defaultConfig()
	}
	if cfg.MaxGoroutineCount < 1 {
		cfg.MaxGoroutineCount = 1
	}
	if logger == nil {
		opts := slog.HandlerOptions{Level: slog.LevelWarn}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &opts))
	}
	if taskLogs == nil {
		taskLogs = loggerFactory{logger: logger}
	}
	return &Executor{
		config:   cfg,
		taskLogs: taskLogs,
		logger:   logger,
		metrics:  m,
		slots:    make(chan struct{}, cfg.MaxGoroutineCount),
	}
}

// Execute runs single attempt of the task node and blocks until it's done,
// timed out or given context is cancelled. Panics are recovered and returned
// as ErrTaskPanicked errors.
func (e *Executor) Execute(ctx context.Context, tri dag.TaskRunInfo, node dag.Node) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	start := time.Now()
	taskCtx := ctx
	cancel := func() {}
	if timeout := node.Config.Timeout(); timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	taskLogger := e.taskLogs.GetLogger(tri)
	tc := dag.TaskContext{
		Context: taskCtx,
		Logger:  taskLogger,
		DagRun:  dag.RunInfo{DagId: tri.DagId, ExecTs: tri.ExecTs},
		Retry:   tri.Retry,
	}

	e.logger.Info("Start executing task", "dagId", string(tri.DagId),
		"execTs", tri.ExecTs, "taskId", tri.TaskId, "retry", tri.Retry)
	done := make(chan error, 1)
	go func() {
		done <- executeTask(node.Task, tc)
	}()

	var execErr error
	select {
	case execErr = <-done:
		if execErr != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			execErr = fmt.Errorf("%w after %v: %w", ErrTaskTimeout,
				node.Config.Timeout(), execErr)
		}
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			execErr = ctx.Err()
		} else {
			execErr = fmt.Errorf("%w after %v", ErrTaskTimeout,
				node.Config.Timeout())
		}
		e.logger.Warn("Task did not finish before its context was done",
			"dagId", string(tri.DagId), "taskId", tri.TaskId, "retry",
			tri.Retry)
	}
	duration := time.Since(start)

	status := dag.TaskSuccess
	if execErr != nil {
		status = dag.TaskFailed
		taskLogger.Error("Task finished with error", "err", execErr.Error())
		e.logger.Error("Task finished with error", "dagId",
			string(tri.DagId), "taskId", tri.TaskId, "retry", tri.Retry,
			"err", execErr.Error())
	} else {
		taskLogger.Info("Task finished successfully", "duration",
			duration.String())
		e.logger.Info("Finished executing task", "dagId", string(tri.DagId),
			"taskId", tri.TaskId, "retry", tri.Retry, "duration", duration)
	}
	e.metrics.ObserveTaskAttempt(string(tri.DagId), tri.TaskId,
		status.String(), duration)
	return execErr
}

func executeTask(task dag.Task, tc dag.TaskContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tc.Logger.Error("Recovered from panic", "err", r, "stack",
				string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task.Execute(tc)
}

// acquire blocks until new attempt can be started, based on
// MaxGoroutineCount configuration.
func (e *Executor) acquire(ctx context.Context) error {
	select {
	case e.slots <- struct{}{}:
		return nil
	default:
	}
	e.logger.Warn("Cannot yet start new task, Executor hit the limit.",
		"limit", e.config.MaxGoroutineCount)
	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) release() {
	<-e.slots
}

// loggerFactory is tasklog.Factory which logs into given logger instead of
// the database.
type loggerFactory struct {
	logger *slog.Logger
}

func (lf loggerFactory) GetLogger(tri dag.TaskRunInfo) *slog.Logger {
	return lf.logger.With("dagId", string(tri.DagId), "execTs", tri.ExecTs,
		"taskId", tri.TaskId, "retry", tri.Retry)
}

func (lf loggerFactory) GetLogReader(dag.TaskRunInfo) tasklog.Reader {
	return emptyReader{}
}

type emptyReader struct{}

func (emptyReader) ReadAll(context.Context) ([]tasklog.Record, error) {
	return []tasklog.Record{}, nil
}

func (emptyReader) ReadLatest(context.Context, int) ([]tasklog.Record, error) {
	return []tasklog.Record{}, nil
}
