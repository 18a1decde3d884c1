// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// NewSqliteClient creates new Client for SQLite database stored in given
// file. Schema is created, if it doesn't exist yet.
func NewSqliteClient(dbFilePath string, logger *slog.Logger) (*Client, error) {
	if dir := filepath.Dir(dbFilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directory for %s: %w",
				dbFilePath, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbFilePath)
	dbConn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := setupSqliteSchema(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}
	sqliteDB := SqliteDB{dbConn: dbConn, dbFilePath: dbFilePath}
	return &Client{
		dbConn:   &sqliteDB,
		dbDriver: SQLite,
		logger:   defaultLogger(logger),
	}, nil
}

// NewSqliteTmpClient creates new SQLite client on a new file in temporary
// directory. It's meant for tests, please use CleanUpSqliteTmp to remove the
// file afterwards.
func NewSqliteTmpClient(logger *slog.Logger) (*Client, error) {
	fileName := fmt.Sprintf("trends_%d.db", time.Now().UnixNano())
	return NewSqliteClient(filepath.Join(os.TempDir(), fileName), logger)
}

// NewSqliteInMemoryClient creates new SQLite client which keeps the data in
// the memory. Data is lost after closing the client.
func NewSqliteInMemoryClient(logger *slog.Logger) (*Client, error) {
	dbConn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Each connection would get a separate in-memory database.
	dbConn.SetMaxOpenConns(1)
	if err := setupSqliteSchema(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}
	return &Client{
		dbConn:   &SqliteDBInMemory{dbConn: dbConn},
		dbDriver: SQLite,
		logger:   defaultLogger(logger),
	}, nil
}

func setupSqliteSchema(dbConn *sql.DB) error {
	stmts, err := SchemaStatements(SQLite)
	if err != nil {
		return err
	}
	return execSqlStatements(dbConn, stmts)
}

// SqliteDB is SQLite database stored in a file. Writes are serialized.
type SqliteDB struct {
	sync.RWMutex
	dbConn     *sql.DB
	dbFilePath string
}

func (s *SqliteDB) Begin() (*sql.Tx, error) {
	return s.dbConn.Begin()
}

func (s *SqliteDB) Exec(query string, args ...any) (sql.Result, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.Exec(query, args...)
}

func (s *SqliteDB) ExecContext(
	ctx context.Context, query string, args ...any,
) (sql.Result, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.ExecContext(ctx, query, args...)
}

func (s *SqliteDB) Close() error {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.Close()
}

func (s *SqliteDB) DataSource() string {
	return s.dbFilePath
}

func (s *SqliteDB) Query(query string, args ...any) (*sql.Rows, error) {
	s.RLock()
	defer s.RUnlock()
	return s.dbConn.Query(query, args...)
}

func (s *SqliteDB) QueryContext(
	ctx context.Context, query string, args ...any,
) (*sql.Rows, error) {
	s.RLock()
	defer s.RUnlock()
	return s.dbConn.QueryContext(ctx, query, args...)
}

func (s *SqliteDB) QueryRow(query string, args ...any) *sql.Row {
	s.RLock()
	defer s.RUnlock()
	return s.dbConn.QueryRow(query, args...)
}

func (s *SqliteDB) QueryRowContext(
	ctx context.Context, query string, args ...any,
) *sql.Row {
	s.RLock()
	defer s.RUnlock()
	return s.dbConn.QueryRowContext(ctx, query, args...)
}

// SQLite database where data is stored in the memory rather than in a file on
// a disk. It needs additional level of isolation for concurrent access.
type SqliteDBInMemory struct {
	sync.Mutex
	dbConn *sql.DB
}

func (s *SqliteDBInMemory) Begin() (*sql.Tx, error) {
	return s.dbConn.Begin()
}

func (s *SqliteDBInMemory) Exec(query string, args ...any) (sql.Result, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.Exec(query, args...)
}

func (s *SqliteDBInMemory) ExecContext(
	ctx context.Context, query string, args ...any,
) (sql.Result, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.ExecContext(ctx, query, args...)
}

func (s *SqliteDBInMemory) Close() error {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.Close()
}

func (s *SqliteDBInMemory) DataSource() string {
	return "IN_MEMORY"
}

func (s *SqliteDBInMemory) Query(query string, args ...any) (*sql.Rows, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.Query(query, args...)
}

func (s *SqliteDBInMemory) QueryContext(
	ctx context.Context, query string, args ...any,
) (*sql.Rows, error) {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.QueryContext(ctx, query, args...)
}

func (s *SqliteDBInMemory) QueryRow(query string, args ...any) *sql.Row {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.QueryRow(query, args...)
}

func (s *SqliteDBInMemory) QueryRowContext(
	ctx context.Context, query string, args ...any,
) *sql.Row {
	s.Lock()
	defer s.Unlock()
	return s.dbConn.QueryRowContext(ctx, query, args...)
}
