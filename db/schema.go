// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"fmt"
	"strings"
)

// TableNames is a list of state database table names.
var TableNames []string = []string{
	"dags",
	"dagtasks",
	"dagruns",
	"dagruntasks",
	"schedules",
	"tasklogs",
}

// SchemaStatements returns a list of SQL statements that setups new instance
// of the state database. It can differ a little bit between SQL databases, so
// exact list of statements are prepared based on given database driver. If
// given database driver is not supported, then non-nil error is returned.
func SchemaStatements(dbDriver Driver) ([]string, error) {
	switch dbDriver {
	case SQLite, "sqlite3":
		return []string{
			"PRAGMA journal_mode = WAL;",
			createDagsTable(),
			createDagtasksTable(),
			createDagrunsTable("RunId INTEGER PRIMARY KEY"),
			createDagruntasksTable(),
			createSchedulesTable(),
			createTaskLogsTable("LogId INTEGER PRIMARY KEY"),
			createTaskLogsIndex(),
		}, nil
	case Postgres:
		return []string{
			createDagsTable(),
			createDagtasksTable(),
			createDagrunsTable("RunId SERIAL PRIMARY KEY"),
			createDagruntasksTable(),
			createSchedulesTable(),
			createTaskLogsTable("LogId SERIAL PRIMARY KEY"),
			createTaskLogsIndex(),
		}, nil
	}
	return []string{}, fmt.Errorf("there is no schema for %s driver defined",
		dbDriver)
}

func createDagsTable() string {
	return `
-- Table dags stores DAGs and its metadata. Information about DAG tasks are
-- stored in dagtasks table.
CREATE TABLE IF NOT EXISTS dags (
    DagId TEXT NOT NULL,            -- DAG ID
    StartTs TEXT NULL,              -- DAG schedule start timestamp
    Schedule TEXT NULL,             -- DAG schedule
    CreateTs TEXT NOT NULL,         -- Timestamp when DAG was initially inserted
    LatestUpdateTs TEXT NULL,       -- Timestamp of the DAG latest update
    CreateVersion TEXT NOT NULL,    -- Version when DAG was initially inserted
    LatestUpdateVersion TEXT NULL,  -- Version of DAG latest update
    HashDagMeta TEXT NOT NULL,      -- SHA256 hash of DAG attributes + StartTs + Schedule
    HashTasks TEXT NOT NULL,        -- SHA256 hash of DAG tasks and edges
    Attributes TEXT NOT NULL,       -- DAG attributes like tags

    PRIMARY KEY (DagId)
);
`
}

func createDagtasksTable() string {
	return `
-- Table dagtasks represents tasks in dags. It contains history of changes.
-- Current state of all DAGs and its tasks can be determined by using
-- IsCurrent=1 condition.
CREATE TABLE IF NOT EXISTS dagtasks (
    DagId TEXT NOT NULL,            -- DAG ID
    TaskId TEXT NOT NULL,           -- Task ID
    IsCurrent INT NOT NULL,         -- Flag if pair (DagId, TaskId) represents the current version
    InsertTs TEXT NOT NULL,         -- Insert timestamp
    Version TEXT NOT NULL,          -- Version
    TaskTypeName TEXT NOT NULL,     -- Go type name which implements this task
    Upstream TEXT NOT NULL,         -- Comma separated upstream task IDs
    TaskConfig TEXT NOT NULL,       -- Task configuration in form of JSON
    TaskHash TEXT NOT NULL,         -- Task definition hash
    TaskDefinition TEXT NOT NULL,   -- Task definition (SQL template)

    PRIMARY KEY (DagId, TaskId, InsertTs)
);
`
}

func createDagrunsTable(runIdColumn string) string {
	return fmt.Sprintf(`
-- Table dagruns stores DAG runs information. There is one row per run of a
-- DAG for a logical date. Logical date might be run again after failure.
CREATE TABLE IF NOT EXISTS dagruns (
    %s,                             -- Run ID - auto increments
    DagId TEXT NOT NULL,            -- DAG ID
    ExecTs TEXT NOT NULL,           -- Logical date (YYYY-MM-DD)
    InsertTs TEXT NOT NULL,         -- Row insertion timestamp
    Status TEXT NOT NULL,           -- DAG run status
    StatusUpdateTs TEXT NOT NULL,   -- Status update timestamp (on first insert it's the same as InsertTs)
    Event TEXT NOT NULL,            -- What caused the run (REGULAR, BACKFILL, ...)
    Version TEXT NOT NULL           -- Version
);
`, runIdColumn)
}

func createDagruntasksTable() string {
	return `
-- Table dagruntasks stores every attempt of every task in DAG runs.
CREATE TABLE IF NOT EXISTS dagruntasks (
    RunId INT NOT NULL,             -- DAG run ID
    DagId TEXT NOT NULL,            -- DAG ID
    ExecTs TEXT NOT NULL,           -- Logical date
    TaskId TEXT NOT NULL,           -- Task ID
    Retry INT NOT NULL,             -- Identifier for task retry. For initial run it's 0.
    InsertTs TEXT NOT NULL,         -- Insert timestamp
    Status TEXT NOT NULL,           -- DAG task execution status
    StatusUpdateTs TEXT NOT NULL,   -- Status update timestamp (on first insert it's the same as InsertTs)
    Error TEXT NULL,                -- Error message of failed attempt
    Version TEXT NOT NULL,          -- Version

    PRIMARY KEY (RunId, TaskId, Retry)
);
`
}

func createSchedulesTable() string {
	return `
-- Table schedules stores information about DAG schedules, including regular
-- planned schedules, caught up ticks, backfills and manual triggers.
CREATE TABLE IF NOT EXISTS schedules (
    DagId TEXT NOT NULL,           -- DAG ID
    InsertTs TEXT NOT NULL,        -- Insert timestamp
    Event TEXT NOT NULL,           -- Schedule related event
    ScheduleTs TEXT NULL,          -- Schedule timestamp for the DAG
    NextScheduleTs TEXT NOT NULL,  -- Next planned Schedule timestamp

    PRIMARY KEY (DagId, InsertTs, Event)
);
`
}

func createTaskLogsTable(logIdColumn string) string {
	return fmt.Sprintf(`
-- Table tasklogs stores DAG run task logs.
CREATE TABLE IF NOT EXISTS tasklogs (
    %s,                     -- Log record ID - auto increments
    RunId INT NOT NULL,     -- DAG run ID
    DagId TEXT NOT NULL,    -- DAG ID
    ExecTs TEXT NOT NULL,   -- Logical date
    TaskId TEXT NOT NULL,   -- Task ID
    Retry INT NOT NULL,     -- Identifier for task retry. For initial run it's 0
    InsertTs TEXT NOT NULL, -- Row insertion timestamp
    Level TEXT NOT NULL,    -- Severity level
    Message TEXT NULL,      -- Log message
    Attributes TEXT NULL    -- Additional log record attributes (JSON)
);
`, logIdColumn)
}

func createTaskLogsIndex() string {
	return strings.TrimSpace(`
CREATE INDEX IF NOT EXISTS ix_tasklogs_run ON tasklogs (RunId, TaskId, Retry);
`)
}
