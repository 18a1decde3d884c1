// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/ds"
	"github.com/ppacer/trends/timeutils"
)

// Watcher watches DAG schedules and starts DAG runs for due logical dates.
// Missed dates since the latest DAG run (or since the schedule start) are
// caught up, when DAG has CatchUp attribute set.
type Watcher struct {
	runner     *DagRunner
	dbClient   *db.Client
	config     WatcherConfig
	logger     *slog.Logger
	dispatched *ds.AsyncMap[runKey, struct{}]
	nowFunc    func() time.Time
	wg         sync.WaitGroup
}

// NewWatcher creates new Watcher. When logger is nil default logger is
// used.
func NewWatcher(
	runner *DagRunner, dbClient *db.Client, config WatcherConfig,
	logger *slog.Logger,
) *Watcher {
	if logger == nil {
		logger = defaultLogger()
	}
	if config.MaxConcurrentRuns < 1 {
		config.MaxConcurrentRuns = 1
	}
	return &Watcher{
		runner:     runner,
		dbClient:   dbClient,
		config:     config,
		logger:     logger,
		dispatched: ds.NewAsyncMap[runKey, struct{}](),
		nowFunc:    time.Now,
	}
}

// Watch checks given DAGs schedules every WatchInterval and starts DAG runs
// for due logical dates. It blocks until the context is done and all started
// DAG runs are finished.
func (w *Watcher) Watch(ctx context.Context, dags []dag.Dag) {
	var wg sync.WaitGroup
	for _, d := range dags {
		if d.Schedule == nil {
			w.logger.Warn("DAG has no schedule, it won't be watched", "dagId",
				string(d.Id))
			continue
		}
		wg.Add(1)
		go func(d dag.Dag) {
			defer wg.Done()
			w.watchDag(ctx, d)
		}(d)
	}
	wg.Wait()
	w.wg.Wait()
}

func (w *Watcher) watchDag(ctx context.Context, d dag.Dag) {
	slots := make(chan struct{}, w.maxConcurrentRuns(d))
	ticker := time.NewTicker(w.config.WatchInterval)
	defer ticker.Stop()
	for {
		w.tick(ctx, d, slots)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick dispatches DAG runs for all due dates, in ascending order. It blocks
// while all run slots are taken.
func (w *Watcher) tick(ctx context.Context, d dag.Dag, slots chan struct{}) {
	dates, err := w.DueDates(ctx, d, w.nowFunc())
	if err != nil {
		w.logger.Error("Cannot determine due dates", "dagId", string(d.Id),
			"err", err.Error())
		return
	}
	for idx, date := range dates {
		key := newRunKey(d.Id, date)
		if _, done := w.dispatched.Get(key); done {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case slots <- struct{}{}:
		}
		if !w.dispatched.AddIfAbsent(key, struct{}{}) {
			<-slots
			continue
		}
		event := schedule.CaughtUp
		if idx == len(dates)-1 {
			event = schedule.Regular
		}
		w.insertSchedule(ctx, d, date, event)
		w.wg.Add(1)
		go func(date time.Time, event schedule.Event) {
			defer w.wg.Done()
			defer func() { <-slots }()
			_, runErr := w.runner.RunWithEvent(ctx, d, date, event)
			if runErr != nil {
				w.logger.Error("Cannot run DAG", "dagId", string(d.Id),
					"execTs", timeutils.ToDateString(date), "err",
					runErr.Error())
			}
		}(date, event)
	}
}

// DueDates returns logical dates of the DAG which should be run at given
// time, in ascending order. Only dates after the latest date started by the
// watcher itself (REGULAR or CAUGHT_UP runs) are considered, and dates which
// already have a run of any kind (manual trigger, backfill) are skipped.
// Without CatchUp only the most recent due date is returned.
func (w *Watcher) DueDates(ctx context.Context, d dag.Dag, now time.Time) ([]time.Time, error) {
	if d.Schedule == nil {
		return nil, nil
	}
	var latest *time.Time
	latestRun, err := w.dbClient.ReadLatestDagRun(ctx, string(d.Id),
		schedule.Regular.String(), schedule.CaughtUp.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		latestDate, pErr := timeutils.ParseDate(latestRun.ExecTs)
		if pErr != nil {
			return nil, pErr
		}
		latest = &latestDate
	}

	dates := make([]time.Time, 0)
	for _, tick := range schedule.Ticks(d.Schedule, now) {
		date := schedule.LogicalDate(tick)
		if latest != nil && !date.After(*latest) {
			continue
		}
		dates = append(dates, date)
	}
	if !d.Attr.CatchUp && len(dates) > 1 {
		dates = dates[len(dates)-1:]
	}

	due := make([]time.Time, 0, len(dates))
	for _, date := range dates {
		_, rErr := w.dbClient.ReadDagRunByExecTs(ctx, string(d.Id),
			timeutils.ToDateString(date))
		if rErr == nil {
			continue
		}
		if !errors.Is(rErr, sql.ErrNoRows) {
			return nil, rErr
		}
		due = append(due, date)
	}
	return due, nil
}

func (w *Watcher) maxConcurrentRuns(d dag.Dag) int {
	for _, node := range d.Nodes() {
		if node.Config.DependsOnPast {
			return 1
		}
	}
	return w.config.MaxConcurrentRuns
}

func (w *Watcher) insertSchedule(
	ctx context.Context, d dag.Dag, date time.Time, event schedule.Event,
) {
	tick := timeutils.ToString(date)
	next := d.Schedule.Next(w.nowFunc(), nil)
	iErr := w.dbClient.InsertDagSchedule(ctx, string(d.Id), event.String(),
		timeutils.ToString(next), &tick)
	if iErr != nil {
		w.logger.Warn("Cannot insert DAG schedule event", "dagId",
			string(d.Id), "execTs", timeutils.ToDateString(date), "event",
			event.String(), "err", iErr.Error())
	}
}
