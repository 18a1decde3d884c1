// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppacer/trends/trends"
	"github.com/ppacer/trends/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCli executes trends command in dry-run mode with in-memory run store,
// unless given args say otherwise.
func runCli(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	base := []string{"--dry-run", "--log-level", "ERROR"}
	if !containsArg(args, "--db-dsn") {
		base = append(base, "--db-dsn", ":memory:")
	}
	err := execute(context.Background(), append(args, base...), &out, &errOut)
	return out.String(), err
}

func containsArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}

func allTaskIds() []string {
	return []string{
		trends.CheckGithubArchiveDay,
		trends.CheckHackernewsFull,
		trends.WriteGithubDailyMetrics,
		trends.WriteGithubAgg,
		trends.WriteHackernewsAgg,
		trends.WriteHackernewsGithubAgg,
		trends.CheckHackernewsGithubAgg,
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCli(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestGraphCmd(t *testing.T) {
	out, err := runCli(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, string(trends.DagId))
	for _, taskId := range allTaskIds() {
		assert.Contains(t, out, taskId)
	}

	dot, err := runCli(t, "graph", "--dot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dot, "digraph"))
	assert.Contains(t, dot, `"`+trends.WriteGithubAgg+`" -> "`+trends.WriteHackernewsGithubAgg+`"`)
	assert.Contains(t, dot, `"`+trends.WriteHackernewsAgg+`" -> "`+trends.WriteHackernewsGithubAgg+`"`)
}

func TestRenderCmd(t *testing.T) {
	out, err := runCli(t, "render", trends.WriteGithubDailyMetrics,
		"--date", "2017-06-02")
	require.NoError(t, err)
	assert.Contains(t, out, "my-project.github_trends.github_daily_metrics$20170601")
	assert.Contains(t, out, "githubarchive.day.20170601")
	assert.Contains(t, out, "STANDARD")

	gate, err := runCli(t, "render", trends.CheckGithubArchiveDay,
		"--date", "20170602", "--project", "acme")
	require.NoError(t, err)
	assert.Contains(t, gate, `table_id = "20170601"`)
	assert.NotContains(t, gate, "destination")

	_, err = runCli(t, "render", "unknown_task", "--date", "2017-06-02")
	assert.Error(t, err)
	_, err = runCli(t, "render", trends.WriteGithubAgg)
	assert.Error(t, err, "date is required")
}

func TestRunCmdDryRun(t *testing.T) {
	out, err := runCli(t, "run", "--date", "2017-06-02")
	require.NoError(t, err)
	assert.Contains(t, out, "2017-06-02: SUCCESS")
	for _, taskId := range allTaskIds() {
		assert.Contains(t, out, taskId)
	}
}

func TestTestCmdDryRun(t *testing.T) {
	out, err := runCli(t, "test", trends.WriteHackernewsAgg, "--date",
		"2017-06-02")
	require.NoError(t, err)
	assert.Contains(t, out, trends.WriteHackernewsAgg)
	assert.Contains(t, out, "SUCCESS")

	_, err = runCli(t, "test", "unknown_task", "--date", "2017-06-02")
	assert.Error(t, err)
}

func TestBackfillAndStatusCmd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trends.db")
	out, err := runCli(t, "backfill", "--from", "2017-06-02", "--to",
		"2017-06-04", "--db-dsn", dbPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for idx, date := range []string{"2017-06-02", "2017-06-03", "2017-06-04"} {
		assert.True(t, strings.HasPrefix(lines[idx], date), lines[idx])
		assert.True(t, strings.HasSuffix(lines[idx], "SUCCESS"), lines[idx])
	}

	status, err := runCli(t, "status", "--date", "2017-06-03", "--db-dsn",
		dbPath)
	require.NoError(t, err)
	assert.Contains(t, status, "2017-06-03: SUCCESS (BACKFILL)")
	for _, taskId := range allTaskIds() {
		assert.Contains(t, status, taskId)
	}

	_, err = runCli(t, "status", "--date", "2017-07-01", "--db-dsn", dbPath)
	assert.Error(t, err)
}

func TestProvisionCmdDryRun(t *testing.T) {
	out, err := runCli(t, "provision", "--dataset", "trends_test")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	for _, table := range []string{
		trends.TableGithubDailyMetrics, trends.TableGithubAgg,
		trends.TableHackernewsAgg, trends.TableHackernewsGithubAgg,
	} {
		assert.Contains(t, out, "my-project.trends_test."+table)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	_, err := runCli(t, "graph", "--db-driver", "mysql")
	assert.Error(t, err)
	_, err = runCli(t, "graph", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
