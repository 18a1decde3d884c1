package db

import (
	"log/slog"
	"os"
	"testing"
)

func TestSqliteTmpClientCreation(t *testing.T) {
	c, err := NewSqliteTmpClient(testLogger())
	if err != nil {
		t.Fatalf("Cannot create Client: %s", err.Error())
	}
	defer CleanUpSqliteTmp(c, t)

	for _, table := range TableNames {
		if rows := c.Count(table); rows != 0 {
			t.Errorf("Expected table %s to exists and has 0 records, got: %d",
				table, rows)
		}
	}
}

func TestSqliteClientReopen(t *testing.T) {
	path := t.TempDir() + "/state/trends.db"
	c1, err := NewSqliteClient(path, testLogger())
	if err != nil {
		t.Fatalf("Cannot create Client: %s", err.Error())
	}
	if _, iErr := c1.InsertDagRun(ctxT(t), "d", "2017-06-02", "REGULAR"); iErr != nil {
		t.Fatalf("Cannot insert dag run: %s", iErr.Error())
	}
	c1.Close()

	c2, err := NewSqliteClient(path, testLogger())
	if err != nil {
		t.Fatalf("Cannot reopen Client: %s", err.Error())
	}
	defer c2.Close()
	if cnt := c2.Count("dagruns"); cnt != 1 {
		t.Errorf("Expected 1 dag run after reopening, got: %d", cnt)
	}
}

func testLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("TRENDS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	opts := slog.HandlerOptions{Level: level}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}
