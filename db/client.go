// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package db contains all communication between the pipeline runtime and its
state database.

# Introduction

The database keeps DAG definitions (dags, dagtasks), schedule events
(schedules), DAG runs per logical date (dagruns), every task attempt
(dagruntasks) and task logs (tasklogs). Warehouse data is never stored here.

# Supported databases

  - SQLite - used as the default database. It's also used as in-memory database
    and database on /tmp files for unit and integration tests.
  - Postgres
*/
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"
)

// DB defines a set of operations required from a database. Most of methods are
// identical with standard `*sql.DB` type.
type DB interface {
	Begin() (*sql.Tx, error)
	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
	DataSource() string
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver names supported SQL database.
type Driver string

const (
	SQLite   Driver = "sqlite"
	Postgres Driver = "postgres"
)

// Client represents the main database client.
type Client struct {
	dbConn   DB
	dbDriver Driver
	logger   *slog.Logger
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.dbConn.Close()
}

// DataSource returns database source (file path or database name).
func (c *Client) DataSource() string {
	return c.dbConn.DataSource()
}

// Driver returns database driver of the client.
func (c *Client) Driver() Driver {
	return c.dbDriver
}

// q adapts query placeholders to the client driver. Queries are written with
// '?' placeholders, Postgres expects $1, $2, ...
func (c *Client) q(query string) string {
	if c.dbDriver != Postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 10)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	opts := slog.HandlerOptions{Level: slog.LevelWarn}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

func execSqlStatements(db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("cannot execute schema statement [%s]: %w",
				strings.TrimSpace(stmt), err)
		}
	}
	return nil
}

// CleanUpSqliteTmp deletes SQLite database source file if all tests in the
// scope passed. In at least one test failed, database will not be deleted, to
// enable futher debugging. Even though this function takes generic *Client,
// it's mainly meant for SQLite-based database clients which are used in
// testing.
func CleanUpSqliteTmp(c *Client, t *testing.T) {
	if closeErr := c.dbConn.Close(); closeErr != nil {
		t.Errorf("Error while closing connection to DB: %s", closeErr.Error())
	}
	if t.Failed() {
		t.Logf("Database was not deleted. Please check: sqlite3 %s",
			c.dbConn.DataSource())
		return
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := c.dbConn.DataSource() + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.Errorf("Cannot remove database source file %s: %s", path,
				err.Error())
		}
	}
}
