package db

import (
	"fmt"
	"testing"

	"github.com/ppacer/trends/timeutils"
)

func TestInsertAndReadTaskLogs(t *testing.T) {
	c := newClientForTesting(t)
	ctx := ctxT(t)
	const dagId, execTs = "mock_dag", "2017-06-02"
	runId := insertDagRun(c, dagId, execTs, t)

	const n = 10
	for i := 0; i < n; i++ {
		retry := i % 2
		tlr := TaskLogRecord{
			RunId:      runId,
			DagId:      dagId,
			ExecTs:     execTs,
			TaskId:     "t1",
			Retry:      retry,
			InsertTs:   timeutils.ToString(timeutils.Now()),
			Level:      "INFO",
			Message:    fmt.Sprintf("message %d", i),
			Attributes: "{}",
		}
		if err := c.InsertTaskLog(ctx, tlr); err != nil {
			t.Fatalf("Cannot insert task log: %s", err.Error())
		}
	}

	all, err := c.ReadDagRunLogs(ctx, runId)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Errorf("Expected %d logs, got: %d", n, len(all))
	}
	for i, tlr := range all {
		expected := fmt.Sprintf("message %d", i)
		if tlr.Message != expected {
			t.Errorf("Expected chronological order, got %s on position %d",
				tlr.Message, i)
		}
	}

	retry1, err := c.ReadDagRunTaskLogs(ctx, runId, "t1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(retry1) != n/2 {
		t.Errorf("Expected %d logs for retry 1, got: %d", n/2, len(retry1))
	}
	for _, tlr := range retry1 {
		if tlr.Retry != 1 {
			t.Errorf("Expected only retry 1 logs, got: %+v", tlr)
		}
	}
}

func TestReadTaskLogsEmpty(t *testing.T) {
	c := newClientForTesting(t)
	logs, err := c.ReadDagRunTaskLogs(ctxT(t), 42, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("Expected no logs, got: %d", len(logs))
	}
}
