// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package notify provides a way to send external notifications about failed
// or retried pipeline tasks.
package notify

import (
	"context"
	"io"
)

// Template represents a message template. Go standard text/template.Template
// and html/template.Template satisfy this interface.
type Template interface {
	Execute(io.Writer, any) error
}

// Sender sends a notification, usually onto an external channel of
// communication. Template should be already parsed text template which can use
// additional information from MsgData.
type Sender interface {
	Send(context.Context, Template, MsgData) error
}

// MsgData contains a DAG run contextual information for notification
// templates. ExecTs is the logical date of the run.
type MsgData struct {
	DagId        string
	ExecTs       string
	TaskId       *string
	Retry        int
	TaskRunError error
	RuntimeInfo  map[string]any
}
