package notify

import (
	"bytes"
	"context"
	"log/slog"
)

// LogsErr is a notification client which "sends" notification as logs of
// severity ERROR. It implements Sender interface. It's the default sender when
// no e-mail configuration is given.
type LogsErr struct {
	logger *slog.Logger
}

// NewLogsErr instantiate new LogsErr for given structured logger.
func NewLogsErr(logger *slog.Logger) *LogsErr {
	return &LogsErr{logger: logger}
}

// Send sends given message as a log of severity ERROR.
func (l *LogsErr) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	writeErr := tmpl.Execute(&msgBuff, data)
	if writeErr != nil {
		return writeErr
	}
	attrs := []any{"dagId", data.DagId, "execTs", data.ExecTs}
	if data.TaskId != nil {
		attrs = append(attrs, "taskId", *data.TaskId, "retry", data.Retry)
	}
	l.logger.Error(msgBuff.String(), attrs...)
	return nil
}
