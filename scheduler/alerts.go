// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/notify"
	"github.com/ppacer/trends/timeutils"
)

// sendAlert sends notification about failed task attempt. Task level
// notifier takes precedence over DagRunner notifier. Errors are only logged,
// failed alert does not change the task status.
func (dr *DagRunner) sendAlert(
	ctx context.Context, node *dag.Node, tri dag.TaskRunInfo, taskErr error,
	isRetry bool,
) {
	tmpl, kind := alertTemplate(node.Config, isRetry)
	if tmpl == nil {
		return
	}
	notifier := dr.notifier
	if node.Config.Notifier != nil {
		notifier = node.Config.Notifier
	}
	taskId := tri.TaskId
	msg := notify.MsgData{
		DagId:        string(tri.DagId),
		ExecTs:       timeutils.ToDateString(tri.ExecTs),
		TaskId:       &taskId,
		Retry:        tri.Retry,
		TaskRunError: taskErr,
		RuntimeInfo: map[string]any{
			"runId":   tri.RunId,
			"retries": node.Config.Retries,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, dr.config.AlertTimeout)
	defer cancel()
	sErr := notifier.Send(ctx, tmpl, msg)
	dr.metrics.ObserveAlert(string(tri.DagId), kind, sErr)
	if sErr != nil {
		dr.logger.Error("Cannot send alert", "dagId", string(tri.DagId),
			"taskId", tri.TaskId, "retry", tri.Retry, "kind", kind, "err",
			sErr.Error())
	}
}

// alertTemplate returns template for alert of given kind, or nil when alert
// should not be sent.
func alertTemplate(cfg dag.TaskConfig, isRetry bool) (notify.Template, string) {
	if isRetry {
		if !cfg.SendAlertOnRetry {
			return nil, "retry"
		}
		return orDefault(cfg.AlertOnRetryTemplate), "retry"
	}
	if !cfg.SendAlertOnFailure {
		return nil, "failure"
	}
	return orDefault(cfg.AlertOnFailureTemplate), "failure"
}

func orDefault(tmpl notify.Template) notify.Template {
	if tmpl == nil {
		return dag.DefaultAlertTemplate()
	}
	return tmpl
}
