// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"text/template"
	"time"

	"github.com/ppacer/trends/notify"
)

// TaskConfig represents Task configuration. It contains information about
// configuration of a task execution, like a timeout for executing given task
// or how many times scheduler should retry in case of failures.
type TaskConfig struct {
	TimeoutSeconds      float64 `json:"timeoutSeconds"`
	Retries             int     `json:"retries"`
	RetriesDelaySeconds float64 `json:"retriesDelaySeconds"`
	SendAlertOnRetry    bool    `json:"sendAlertOnRetry"`
	SendAlertOnFailure  bool    `json:"sendAlertOnFailure"`

	// When set, the task for logical date D can be started only when the
	// same task has succeeded for date D-1. The first date of the DAG
	// schedule is exempt.
	DependsOnPast bool `json:"dependsOnPast"`

	// Notification sender for that task. By default is nil which mean that
	// notifier set on scheduler level would be used.
	Notifier notify.Sender `json:"-"`

	AlertOnRetryTemplate   notify.Template `json:"-"`
	AlertOnFailureTemplate notify.Template `json:"-"`
}

// Timeout returns TimeoutSeconds as time.Duration.
func (tc TaskConfig) Timeout() time.Duration {
	return time.Duration(tc.TimeoutSeconds * float64(time.Second))
}

// RetriesDelay returns RetriesDelaySeconds as time.Duration.
func (tc TaskConfig) RetriesDelay() time.Duration {
	return time.Duration(tc.RetriesDelaySeconds * float64(time.Second))
}

// Default template for alerts.
func DefaultAlertTemplate() *template.Template {
	body := `
Task [{{.TaskId}}] in DAG [{{.DagId}}] for {{.ExecTs}} has failed.
{{- if .TaskRunError}}
Error:
	{{.TaskRunError.Error}}
{{end}}
`
	return template.Must(template.New("default").Parse(body))
}

// Default task configuration. If not specified otherwise the following
// configuration values would be used for Task scheduling and execution.
var DefaultTaskConfig = TaskConfig{
	TimeoutSeconds:      10 * 60,
	Retries:             0,
	RetriesDelaySeconds: 0,
	SendAlertOnRetry:    false,
	SendAlertOnFailure:  true,
	DependsOnPast:       false,

	// By default Notifier is inherited from the scheduler.
	Notifier: nil,

	AlertOnRetryTemplate:   DefaultAlertTemplate(),
	AlertOnFailureTemplate: DefaultAlertTemplate(),
}

// TaskConfigFunc is a family of functions which takes a TaskConfig and
// potentially updates values of given configuration.
type TaskConfigFunc func(*TaskConfig)

// WithTaskTimeout returns TaskConfigFunc for setting a timeout for task
// exection.
func WithTaskTimeout(timeout time.Duration) TaskConfigFunc {
	return func(config *TaskConfig) {
		config.TimeoutSeconds = timeout.Seconds()
	}
}

// WithTaskRetries returns TaskConfigFunc for setting number of retries for
// task execution.
func WithTaskRetries(retries int) TaskConfigFunc {
	return func(config *TaskConfig) {
		config.Retries = retries
	}
}

// WithTaskRetriesDelay returns TaskConfigFunc for setting fixed delay between
// task retries.
func WithTaskRetriesDelay(delay time.Duration) TaskConfigFunc {
	return func(config *TaskConfig) {
		config.RetriesDelaySeconds = delay.Seconds()
	}
}

// WithCustomNotifier returns TaskConfigFunc for setting a custom notification
// sender for the task.
func WithCustomNotifier(notifier notify.Sender) TaskConfigFunc {
	return func(config *TaskConfig) {
		config.Notifier = notifier
	}
}

// WithDependsOnPast returns TaskConfigFunc for setting DependsOnPast flag.
func WithDependsOnPast(dependsOnPast bool) TaskConfigFunc {
	return func(config *TaskConfig) {
		config.DependsOnPast = dependsOnPast
	}
}

// WithTaskSendAlertOnRetries is a TaskConfigFunc which sets sending alerts on
// task retries.
func WithTaskSendAlertOnRetries(config *TaskConfig) {
	config.SendAlertOnRetry = true
}

// WithTaskNotSendAlertsOnFailures is a TaskConfigFunc which sets off sending
// alerts on task failure.
func WithTaskNotSendAlertsOnFailures(config *TaskConfig) {
	config.SendAlertOnFailure = false
}
