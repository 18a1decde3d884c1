// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package e2etests

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/trends"
	"github.com/ppacer/trends/warehouse"
)

func TestTrendsDagShape(t *testing.T) {
	e := newEnv(t, testConfig())
	if !e.dag.IsAcyclic() {
		t.Error("Expected trends DAG to be acyclic")
	}
	if cnt := e.dag.ComponentsCount(); cnt != 1 {
		t.Errorf("Expected single connected component, got: %d", cnt)
	}
	if len(e.dag.TaskIds()) != 7 {
		t.Errorf("Expected 7 tasks, got: %d", len(e.dag.TaskIds()))
	}
}

func TestTrendsDagRunFirstDay(t *testing.T) {
	e := newEnv(t, testConfig())
	res := e.run(t, june2)

	if res.Status != dag.RunSuccess {
		t.Fatalf("Expected DAG run SUCCESS, got: %s", res.Status.String())
	}
	for _, taskId := range e.dag.TaskIds() {
		state := res.Tasks[taskId]
		if state.Status != dag.TaskSuccess {
			t.Errorf("Expected task %s SUCCESS, got: %s", taskId,
				state.Status.String())
		}
		if state.Attempts != 1 {
			t.Errorf("Expected single attempt of %s, got: %d", taskId,
				state.Attempts)
		}
	}

	expected := []string{
		"my-project.github_trends.github_agg$20170601",
		"my-project.github_trends.github_daily_metrics$20170601",
		"my-project.github_trends.hackernews_agg$20170601",
		"my-project.github_trends.hackernews_github_agg$20170601",
	}
	if partitions := e.wh.Partitions(); !reflect.DeepEqual(expected, partitions) {
		t.Errorf("Expected partitions %v, got: %v", expected, partitions)
	}
	for _, ref := range trends.OutputPartitions(e.cfg, june2) {
		rows, exists := e.wh.Partition(ref)
		if !exists {
			t.Errorf("Partition %s was not written", ref.String())
			continue
		}
		if len(rows) != 1 {
			t.Errorf("Expected 1 row in %s, got: %d", ref.String(), len(rows))
		}
	}

	gates := e.wh.CallsContaining(`"20170601"`)
	if len(gates) < 2 {
		t.Errorf("Expected gate queries rendered for 20170601, got %d calls",
			len(gates))
	}
	if len(e.alerts) != 0 {
		t.Errorf("Expected no alerts, got: %v", e.alerts)
	}

	dagRun, err := e.dbClient.ReadDagRunByExecTs(context.Background(),
		string(trends.DagId), "2017-06-02")
	if err != nil {
		t.Fatalf("Cannot read DAG run: %s", err.Error())
	}
	if dagRun.Status != dag.RunSuccess.String() {
		t.Errorf("Expected SUCCESS DAG run in database, got: %s",
			dagRun.Status)
	}
}

func TestTrendsJoinStartsAfterBothAggregates(t *testing.T) {
	e := newEnv(t, testConfig())
	res := e.run(t, june2)
	if res.Status != dag.RunSuccess {
		t.Fatalf("Expected DAG run SUCCESS, got: %s", res.Status.String())
	}

	joinIdx := e.runCallIndex(trends.TableHackernewsGithubAgg)
	githubIdx := e.runCallIndex(trends.TableGithubAgg)
	hackernewsIdx := e.runCallIndex(trends.TableHackernewsAgg)
	dailyIdx := e.runCallIndex(trends.TableGithubDailyMetrics)
	if joinIdx < 0 || githubIdx < 0 || hackernewsIdx < 0 || dailyIdx < 0 {
		t.Fatalf("Expected all transforms to run, got indexes: %d %d %d %d",
			dailyIdx, githubIdx, hackernewsIdx, joinIdx)
	}
	if joinIdx < githubIdx || joinIdx < hackernewsIdx {
		t.Errorf("Join (%d) started before aggregates (%d, %d)", joinIdx,
			githubIdx, hackernewsIdx)
	}
	if githubIdx < dailyIdx {
		t.Errorf("github_agg (%d) started before github_daily_metrics (%d)",
			githubIdx, dailyIdx)
	}

	// Final check should be the last call.
	calls := e.wh.Calls()
	last := calls[len(calls)-1]
	if !strings.Contains(last.Query.SQL, "hackernews_github_agg$__PARTITIONS_SUMMARY__") {
		t.Errorf("Expected partition check as the last call, got: %s",
			last.Query.SQL)
	}
}

func TestTrendsRerunIsIdempotent(t *testing.T) {
	e := newEnv(t, testConfig())
	first := e.run(t, june2)
	if first.Status != dag.RunSuccess {
		t.Fatalf("Expected first DAG run SUCCESS, got: %s",
			first.Status.String())
	}
	refs := trends.OutputPartitions(e.cfg, june2)
	before := make(map[string]any, len(refs))
	for _, ref := range refs {
		rows, _ := e.wh.Partition(ref)
		before[ref.String()] = rows
	}

	second := e.run(t, june2)
	if second.Status != dag.RunSuccess {
		t.Fatalf("Expected second DAG run SUCCESS, got: %s",
			second.Status.String())
	}
	if second.RunId == first.RunId {
		t.Errorf("Expected new run ID for the rerun, got the same: %d",
			second.RunId)
	}
	for _, ref := range refs {
		rows, _ := e.wh.Partition(ref)
		if !reflect.DeepEqual(before[ref.String()], rows) {
			t.Errorf("Partition %s differs after rerun", ref.String())
		}
	}
	if cnt := len(e.wh.Partitions()); cnt != 4 {
		t.Errorf("Expected 4 partitions after rerun, got: %d", cnt)
	}
}

func TestTrendsGithubArchiveMissing(t *testing.T) {
	e := newEnv(t, testConfig())
	e.failChecksContaining(githubArchiveSql)
	res := e.run(t, june2)

	if res.Status != dag.RunFailed {
		t.Errorf("Expected DAG run FAILED, got: %s", res.Status.String())
	}
	expectTaskStatuses(t, res, map[string]dag.TaskStatus{
		trends.CheckGithubArchiveDay:    dag.TaskFailed,
		trends.WriteGithubDailyMetrics:  dag.TaskUpstreamFailed,
		trends.WriteGithubAgg:           dag.TaskUpstreamFailed,
		trends.WriteHackernewsGithubAgg: dag.TaskUpstreamFailed,
		trends.CheckHackernewsGithubAgg: dag.TaskUpstreamFailed,
		trends.CheckHackernewsFull:      dag.TaskSuccess,
		trends.WriteHackernewsAgg:       dag.TaskSuccess,
	})
	if attempts := res.Tasks[trends.CheckGithubArchiveDay].Attempts; attempts != 3 {
		t.Errorf("Expected 3 attempts of github archive check, got: %d",
			attempts)
	}
	if checks := e.wh.CallsContaining(githubArchiveSql); len(checks) != 3 {
		t.Errorf("Expected 3 github archive check queries, got: %d",
			len(checks))
	}

	expected := []string{"my-project.github_trends.hackernews_agg$20170601"}
	if partitions := e.wh.Partitions(); !reflect.DeepEqual(expected, partitions) {
		t.Errorf("Expected partitions %v, got: %v", expected, partitions)
	}
	if len(e.alerts) != 1 {
		t.Errorf("Expected single failure alert, got: %d", len(e.alerts))
	}
}

func TestTrendsHackernewsNeverReady(t *testing.T) {
	e := newEnv(t, testConfig())
	e.failChecksContaining(hackernewsFullSql)
	res := e.run(t, june2)

	if res.Status != dag.RunFailed {
		t.Errorf("Expected DAG run FAILED, got: %s", res.Status.String())
	}
	expectTaskStatuses(t, res, map[string]dag.TaskStatus{
		trends.CheckGithubArchiveDay:    dag.TaskSuccess,
		trends.WriteGithubDailyMetrics:  dag.TaskSuccess,
		trends.WriteGithubAgg:           dag.TaskSuccess,
		trends.CheckHackernewsFull:      dag.TaskFailed,
		trends.WriteHackernewsAgg:       dag.TaskUpstreamFailed,
		trends.WriteHackernewsGithubAgg: dag.TaskUpstreamFailed,
		trends.CheckHackernewsGithubAgg: dag.TaskUpstreamFailed,
	})
	if idx := e.runCallIndex(trends.TableHackernewsGithubAgg); idx != -1 {
		t.Errorf("Expected join not to be executed, found call at %d", idx)
	}

	ctx := context.Background()
	drts, err := e.dbClient.ReadDagRunTasks(ctx, res.RunId)
	if err != nil {
		t.Fatalf("Cannot read DAG run tasks: %s", err.Error())
	}
	failedAttempts := 0
	for _, drt := range drts {
		if drt.TaskId == trends.CheckHackernewsFull &&
			drt.Status == dag.TaskFailed.String() {
			failedAttempts++
		}
	}
	if failedAttempts != 3 {
		t.Errorf("Expected 3 failed attempts of hackernews check in database, got: %d",
			failedAttempts)
	}
}

func TestTrendsRecoversAfterRetry(t *testing.T) {
	e := newEnv(t, testConfig())
	checks := 0
	e.wh.SetCheckFunc(func(q warehouse.Query) (bool, error) {
		if strings.Contains(q.SQL, githubArchiveSql) {
			checks++
			return checks > 1, nil
		}
		return true, nil
	})
	res := e.run(t, june2)

	if res.Status != dag.RunSuccess {
		t.Errorf("Expected DAG run SUCCESS, got: %s", res.Status.String())
	}
	if attempts := res.Tasks[trends.CheckGithubArchiveDay].Attempts; attempts != 2 {
		t.Errorf("Expected 2 attempts of github archive check, got: %d",
			attempts)
	}
	if cnt := len(e.wh.Partitions()); cnt != 4 {
		t.Errorf("Expected 4 partitions, got: %d", cnt)
	}
}

func TestTrendsBackfillWritesEveryDay(t *testing.T) {
	e := newEnv(t, testConfig())
	ctx := context.Background()
	results, err := e.runner.Backfill(ctx, e.dag, june2,
		timeutils.AddDays(june2, 2))
	if err != nil {
		t.Fatalf("Unexpected backfill error: %s", err.Error())
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 DAG runs, got: %d", len(results))
	}
	for _, res := range results {
		if res.Status != dag.RunSuccess {
			t.Errorf("Expected SUCCESS for %s, got: %s",
				res.ExecTs.Format("2006-01-02"), res.Status.String())
		}
	}
	if cnt := len(e.wh.Partitions()); cnt != 12 {
		t.Errorf("Expected 12 partitions after 3 days, got: %d", cnt)
	}
	for _, p := range []string{"20170601", "20170602", "20170603"} {
		ref := "my-project.github_trends.github_agg$" + p
		found := false
		for _, actual := range e.wh.Partitions() {
			if actual == ref {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected partition %s", ref)
		}
	}
}
