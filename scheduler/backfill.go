// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/timeutils"
)

// Backfill runs the DAG for every logical date between from and to
// (inclusive), one date at the time in ascending order. Later dates can
// depend on results of earlier ones (rolling windows, DependsOnPast). Failed
// DAG runs does not stop the backfill. Non-nil error is returned when a run
// cannot be started or the context is cancelled, together with results of
// already finished runs.
func (dr *DagRunner) Backfill(ctx context.Context, d dag.Dag, from, to time.Time) ([]RunResult, error) {
	from, to = timeutils.Date(from), timeutils.Date(to)
	if to.Before(from) {
		return nil, fmt.Errorf("backfill end date %s is before start date %s",
			timeutils.ToDateString(to), timeutils.ToDateString(from))
	}
	dates := timeutils.DateRange(from, to)
	results := make([]RunResult, 0, len(dates))
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		tick := timeutils.ToString(date)
		sErr := dr.dbClient.InsertDagSchedule(ctx, string(d.Id),
			schedule.Backfill.String(), tick, &tick)
		if sErr != nil {
			dr.logger.Warn("Cannot insert backfill schedule event", "dagId",
				string(d.Id), "execTs", timeutils.ToDateString(date), "err",
				sErr.Error())
		}
		res, err := dr.RunWithEvent(ctx, d, date, schedule.Backfill)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Status == dag.RunCancelled {
			return results, ctx.Err()
		}
	}
	return results, nil
}
