// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Scannable is satisfied by both *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// Count returns count of rows for given table. If case of errors -1 is
// returned and error is logged.
func (c *Client) Count(table string) int {
	start := time.Now()
	c.logger.Debug("Start COUNT query", "table", table)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	row := c.dbConn.QueryRow(query)
	var count int
	err := row.Scan(&count)
	if err != nil {
		c.logger.Error("Cannot execute COUNT(*)", "table", table, "err", err)
		return -1
	}
	c.logger.Debug("Finished COUNT(*) query", "table", table, "duration",
		time.Since(start))
	return count
}

// CountWhere returns count of rows for given table filtered by given where
// condition. If case of errors -1 is returned and error is logged.
func (c *Client) CountWhere(table, where string) int {
	start := time.Now()
	c.logger.Debug("Start COUNT query", "table", table, "where", where)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	row := c.dbConn.QueryRow(query)
	var count int
	err := row.Scan(&count)
	if err != nil {
		c.logger.Error("Cannot execute COUNT(*)", "table", table, "where",
			where, "err", err)
		return -1
	}
	c.logger.Debug("Finished COUNT(*) query", "table", table, "where", where,
		"duration", time.Since(start))
	return count
}

// readRows executes given query and parses all result rows using parse
// function. Iteration stops on context cancellation.
func readRows[T any](
	ctx context.Context, dbConn DB, logger *slog.Logger,
	parse func(Scannable) (T, error), query string, args ...any,
) ([]T, error) {
	rows, qErr := dbConn.QueryContext(ctx, query, args...)
	if qErr != nil {
		logger.Error("Failed querying database", "err", qErr)
		return nil, qErr
	}
	defer rows.Close()

	result := make([]T, 0, 16)
	for rows.Next() {
		select {
		case <-ctx.Done():
			logger.Warn("Context done while processing rows", "err", ctx.Err())
			return nil, ctx.Err()
		default:
		}
		item, scanErr := parse(rows)
		if scanErr != nil {
			logger.Error("Failed scanning a record", "err", scanErr)
			return nil, scanErr
		}
		result = append(result, item)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return result, nil
}

// readRow executes given query and parses single row. If there's no result,
// then sql.ErrNoRows is returned.
func readRow[T any](
	ctx context.Context, dbConn DB, logger *slog.Logger,
	parse func(Scannable) (T, error), query string, args ...any,
) (T, error) {
	row := dbConn.QueryRowContext(ctx, query, args...)
	item, err := parse(row)
	if err != nil && err != sql.ErrNoRows {
		logger.Error("Failed scanning a record", "err", err)
	}
	return item, err
}

func expectSingleRowAffected(res sql.Result) error {
	rowsAffected, raErr := res.RowsAffected()
	if raErr != nil {
		return raErr
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	if rowsAffected > 1 {
		return fmt.Errorf("expected single row to be affected, got: %d",
			rowsAffected)
	}
	return nil
}
