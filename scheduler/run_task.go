// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/exec"
	"github.com/ppacer/trends/timeutils"
)

// RunTask runs single attempt of given task for given logical date. Upstream
// dependencies are not checked, retries are not performed and nothing is
// persisted in the database. It's meant for testing single tasks.
func RunTask(
	ctx context.Context, d dag.Dag, date time.Time, taskId string,
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = defaultLogger()
	}
	node, err := d.GetNode(taskId)
	if err != nil {
		return err
	}
	tri := dag.TaskRunInfo{
		DagId:  d.Id,
		ExecTs: timeutils.Date(date),
		TaskId: taskId,
	}
	return exec.New(nil, logger, nil, nil).Execute(ctx, tri, *node)
}
