package tasklog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/db"
)

func TestDBLoggerSimple(t *testing.T) {
	c := newDbClient(t)
	tri := taskRunInfo(1, 0)
	logger := NewDB(c, nil, nil).GetLogger(tri)

	messages := []string{
		"test message 1",
		"",
		"test message 2",
	}
	for _, msg := range messages {
		logger.Error(msg)
	}

	ctx := context.Background()
	tlrs, readErr := c.ReadDagRunTaskLogs(ctx, tri.RunId, tri.TaskId, tri.Retry)
	if readErr != nil {
		t.Fatalf("Error when reading tasklogs from database: %s", readErr.Error())
	}
	if len(tlrs) != len(messages) {
		t.Fatalf("Expected %d logs in tasklogs, got: %d", len(messages),
			len(tlrs))
	}
	for idx, msg := range messages {
		if tlrs[idx].Message != msg {
			t.Errorf("For log %d expected message [%s], got [%s]",
				idx, msg, tlrs[idx].Message)
		}
		if tlrs[idx].ExecTs != "2017-06-02" {
			t.Errorf("Expected logical date 2017-06-02, got: %s",
				tlrs[idx].ExecTs)
		}
	}
}

func TestDBLoggerAttributes(t *testing.T) {
	c := newDbClient(t)
	tri := taskRunInfo(1, 0)
	logger := NewDB(c, nil, nil).GetLogger(tri)

	type tmp struct {
		X int     `json:"my_x"`
		Y float64 `json:"y"`
	}

	data := []struct {
		input          []any
		expectedString string
	}{
		{[]any{}, `{}`},
		{[]any{"arg_name", "value"}, `{"arg_name":"value"}`},
		{[]any{"x", 42, "y", "test"}, `{"x":42,"y":"test"}`},
		{[]any{"x", nil}, `{"x":null}`},
		{[]any{"m", map[string]int{"x": 42}}, `{"m":{"x":42}}`},
		{[]any{"data", tmp{X: -42, Y: 3.14}}, `{"data":{"my_x":-42,"y":3.14}}`},
	}

	for _, d := range data {
		logger.Warn("message", d.input...)
	}

	tlrs, readErr := c.ReadDagRunTaskLogs(context.Background(), tri.RunId,
		tri.TaskId, tri.Retry)
	if readErr != nil {
		t.Fatalf("Error when reading tasklogs from database: %s", readErr.Error())
	}
	if len(tlrs) != len(data) {
		t.Fatalf("Expected %d logs in tasklogs, got: %d", len(data), len(tlrs))
	}
	for idx, d := range data {
		if tlrs[idx].Attributes != d.expectedString {
			t.Errorf("Expected attributes for %d row to be [%s], got: [%s]",
				idx, d.expectedString, tlrs[idx].Attributes)
		}
	}
}

func TestDBLoggerLevels(t *testing.T) {
	data := []struct {
		lvl          slog.Level
		expectedRows int
	}{
		{slog.LevelDebug, 4},
		{slog.LevelInfo, 3},
		{slog.LevelWarn, 2},
		{slog.LevelError, 1},
	}
	for _, d := range data {
		c := newDbClient(t)
		tri := taskRunInfo(1, 0)
		opts := slog.HandlerOptions{Level: d.lvl}
		logger := NewDB(c, &opts, nil).GetLogger(tri)

		logger.Debug("debug")
		logger.Info("info")
		logger.Warn("warn")
		logger.Error("error")

		tlrs, readErr := c.ReadDagRunTaskLogs(context.Background(), tri.RunId,
			tri.TaskId, tri.Retry)
		if readErr != nil {
			t.Fatal(readErr)
		}
		if len(tlrs) != d.expectedRows {
			t.Errorf("For level %s expected %d log in tasklogs, got: %d",
				d.lvl, d.expectedRows, len(tlrs))
		}
	}
}

func TestDBReaderSeparatesRetries(t *testing.T) {
	c := newDbClient(t)
	factory := NewDB(c, nil, nil)
	first := taskRunInfo(1, 0)
	second := taskRunInfo(1, 1)

	factory.GetLogger(first).Info("attempt failed", "retry", 0)
	factory.GetLogger(second).Info("attempt started")
	factory.GetLogger(second).Info("attempt succeeded", "rows", 1)

	ctx := context.Background()
	firstLogs, err := factory.GetLogReader(first).ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(firstLogs) != 1 || firstLogs[0].Message != "attempt failed" {
		t.Errorf("Unexpected logs of the first attempt: %+v", firstLogs)
	}
	latest, err := factory.GetLogReader(second).ReadLatest(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].Message != "attempt succeeded" {
		t.Fatalf("Unexpected latest log of the second attempt: %+v", latest)
	}
	if latest[0].Attributes["rows"] != float64(1) {
		t.Errorf("Expected rows=1 attribute, got: %v", latest[0].Attributes)
	}
	if latest[0].Level != "INFO" {
		t.Errorf("Expected INFO level, got: %s", latest[0].Level)
	}
}

func newDbClient(t *testing.T) *db.Client {
	t.Helper()
	c, err := db.NewSqliteInMemoryClient(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func taskRunInfo(runId int64, retry int) dag.TaskRunInfo {
	return dag.TaskRunInfo{
		RunId:  runId,
		DagId:  dag.Id("mock_dag"),
		ExecTs: time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC),
		TaskId: "task_1",
		Retry:  retry,
	}
}
