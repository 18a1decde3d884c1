// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package trends defines daily DAG which computes GitHub repository trends
// (stars and forks over 1, 7 and 28 days) and joins them with Hacker News
// stories linking to GitHub.
//
// For logical date D every output table gets partition D-1, for example run
// for 2017-06-02 writes github_agg$20170601.
package trends

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/tasks"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/warehouse"
)

// DagId of github trends DAG.
const DagId dag.Id = "bigquery_github_trends_v1"

// Task identifiers.
const (
	CheckGithubArchiveDay    = "bq_check_githubarchive_day"
	CheckHackernewsFull      = "bq_check_hackernews_full"
	WriteGithubDailyMetrics  = "bq_write_to_github_daily_metrics"
	WriteGithubAgg           = "bq_write_to_github_agg"
	WriteHackernewsAgg       = "bq_write_to_hackernews_agg"
	WriteHackernewsGithubAgg = "bq_write_to_hackernews_github_agg"
	CheckHackernewsGithubAgg = "bq_check_hackernews_github_agg"
)

// Output tables.
const (
	TableGithubDailyMetrics  = "github_daily_metrics"
	TableGithubAgg           = "github_agg"
	TableHackernewsAgg       = "hackernews_agg"
	TableHackernewsGithubAgg = "hackernews_github_agg"
)

type step struct {
	id       string
	kind     tasks.Kind
	sql      string
	table    string // destination table, transforms only
	upstream []string
}

// steps is the whole DAG definition. SQL uses {project} and {dataset}
// placeholders which are replaced from Config before templates are parsed.
var steps = []step{
	{
		id:   CheckGithubArchiveDay,
		kind: tasks.KindGate,
		sql: `#legacySql
SELECT table_id
FROM [githubarchive:day.__TABLES__]
WHERE table_id = "{{ yesterday_ds_nodash }}"
`,
	},
	{
		id:   CheckHackernewsFull,
		kind: tasks.KindGate,
		sql: `#legacySql
SELECT
  STRFTIME_UTC_USEC(timestamp, "%Y%m%d") as date
FROM
  [bigquery-public-data:hacker_news.full]
WHERE
  type = 'story'
  AND STRFTIME_UTC_USEC(timestamp, "%Y%m%d") = "{{ yesterday_ds_nodash }}"
LIMIT 1
`,
	},
	{
		id:       WriteGithubDailyMetrics,
		kind:     tasks.KindTransform,
		table:    TableGithubDailyMetrics,
		upstream: []string{CheckGithubArchiveDay},
		sql: `#standardSQL
SELECT
  date,
  repo,
  SUM(IF(type='WatchEvent', 1, NULL)) AS stars,
  SUM(IF(type='ForkEvent',  1, NULL)) AS forks
FROM (
  SELECT
    FORMAT_TIMESTAMP("%Y%m%d", created_at) AS date,
    actor.id as actor_id,
    repo.name as repo,
    type
  FROM
    ` + "`githubarchive.day.{{ yesterday_ds_nodash }}`" + `
  WHERE type IN ('WatchEvent','ForkEvent')
)
GROUP BY
  date,
  repo
`,
	},
	{
		id:       WriteGithubAgg,
		kind:     tasks.KindTransform,
		table:    TableGithubAgg,
		upstream: []string{WriteGithubDailyMetrics},
		sql: `#standardSQL
SELECT
  "{{ yesterday_ds_nodash }}" as date,
  repo,
  SUM(stars) as stars_last_28_days,
  SUM(IF(_PARTITIONTIME BETWEEN TIMESTAMP("{{ ds_add ds -6 }}")
    AND TIMESTAMP("{{ yesterday_ds }}") ,
    stars, null)) as stars_last_7_days,
  SUM(IF(_PARTITIONTIME BETWEEN TIMESTAMP("{{ yesterday_ds }}")
    AND TIMESTAMP("{{ yesterday_ds }}") ,
    stars, null)) as stars_last_1_day,
  SUM(forks) as forks_last_28_days,
  SUM(IF(_PARTITIONTIME BETWEEN TIMESTAMP("{{ ds_add ds -6 }}")
    AND TIMESTAMP("{{ yesterday_ds }}") ,
    forks, null)) as forks_last_7_days,
  SUM(IF(_PARTITIONTIME BETWEEN TIMESTAMP("{{ yesterday_ds }}")
    AND TIMESTAMP("{{ yesterday_ds }}") ,
    forks, null)) as forks_last_1_day
FROM
  ` + "`{project}.{dataset}.github_daily_metrics`" + `
WHERE _PARTITIONTIME BETWEEN TIMESTAMP("{{ ds_add ds -27 }}")
AND TIMESTAMP("{{ yesterday_ds }}")
GROUP BY
  date,
  repo
`,
	},
	{
		id:       WriteHackernewsAgg,
		kind:     tasks.KindTransform,
		table:    TableHackernewsAgg,
		upstream: []string{CheckHackernewsFull},
		sql: `#standardSQL
SELECT
  FORMAT_TIMESTAMP("%Y%m%d", timestamp) AS date,
  ` + "`by`" + ` AS submitter,
  id as story_id,
  REGEXP_EXTRACT(url, "(https?://github.com/[^/]*/[^/#?]*)") as url,
  SUM(score) as score
FROM
  ` + "`bigquery-public-data.hacker_news.full`" + `
WHERE
  type = 'story'
  AND timestamp>'{{ yesterday_ds }}'
  AND timestamp<'{{ ds }}'
  AND url LIKE '%https://github.com%'
  AND url NOT LIKE '%github.com/blog/%'
GROUP BY
  date,
  submitter,
  story_id,
  url
`,
	},
	{
		id:       WriteHackernewsGithubAgg,
		kind:     tasks.KindTransform,
		table:    TableHackernewsGithubAgg,
		upstream: []string{WriteGithubAgg, WriteHackernewsAgg},
		sql: `#standardSQL
SELECT
  a.date as date,
  a.url as github_url,
  b.repo as github_repo,
  a.score as hn_score,
  a.story_id as hn_story_id,
  b.stars_last_28_days as stars_last_28_days,
  b.stars_last_7_days as stars_last_7_days,
  b.stars_last_1_day as stars_last_1_day,
  b.forks_last_28_days as forks_last_28_days,
  b.forks_last_7_days as forks_last_7_days,
  b.forks_last_1_day as forks_last_1_day
FROM
  (SELECT
    *
  FROM
    ` + "`{project}.{dataset}.hackernews_agg`" + `
  WHERE _PARTITIONTIME BETWEEN TIMESTAMP("{{ yesterday_ds }}") AND TIMESTAMP("{{ yesterday_ds }}")
  ) as a
LEFT JOIN
  (
  SELECT
    repo,
    CONCAT('https://github.com/', repo) as url,
    stars_last_28_days,
    stars_last_7_days,
    stars_last_1_day,
    forks_last_28_days,
    forks_last_7_days,
    forks_last_1_day
  FROM
    ` + "`{project}.{dataset}.github_agg`" + `
  WHERE _PARTITIONTIME BETWEEN TIMESTAMP("{{ yesterday_ds }}") AND TIMESTAMP("{{ yesterday_ds }}")
  ) as b
ON a.url = b.url
`,
	},
	{
		id:       CheckHackernewsGithubAgg,
		kind:     tasks.KindGate,
		upstream: []string{WriteHackernewsGithubAgg},
		sql: `#legacySql
SELECT
  partition_id
FROM
  [{project}:{dataset}.hackernews_github_agg$__PARTITIONS_SUMMARY__]
WHERE partition_id = "{{ yesterday_ds_nodash }}"
`,
	},
}

// NewDag builds github trends DAG which runs its queries using given
// warehouse client.
func NewDag(cfg Config, client warehouse.Client) (dag.Dag, error) {
	if err := cfg.Validate(); err != nil {
		return dag.Dag{}, fmt.Errorf("invalid trends config: %w", err)
	}
	sched, err := cfg.DailySchedule()
	if err != nil {
		return dag.Dag{}, err
	}
	placeholders := strings.NewReplacer(
		"{project}", cfg.Project,
		"{dataset}", cfg.Dataset,
	)
	configFuncs := taskConfigFuncs(cfg)

	builder := dag.New(DagId).
		AddSchedule(sched).
		AddAttributes(dag.Attr{
			CatchUp: true,
			Tags:    []string{"bigquery", "github", "hackernews"},
		})
	for _, s := range steps {
		task, err := s.task(cfg, placeholders, client)
		if err != nil {
			return dag.Dag{}, err
		}
		builder.AddNode(task, configFuncs...)
		builder.AddEdges(s.id, s.upstream...)
	}
	return builder.Build()
}

// Tables returns references to output tables of the DAG.
func Tables(cfg Config) []warehouse.TableRef {
	tables := make([]warehouse.TableRef, 0, 4)
	for _, s := range steps {
		if s.kind != tasks.KindTransform {
			continue
		}
		tables = append(tables, outputTable(cfg, s.table))
	}
	return tables
}

// OutputPartitions returns partitions written by the DAG run for given
// logical date.
func OutputPartitions(cfg Config, date time.Time) []warehouse.TableRef {
	tables := Tables(cfg)
	partitions := make([]warehouse.TableRef, 0, len(tables))
	for _, t := range tables {
		partitions = append(partitions, t.WithPartition(timeutils.AddDays(date, -1)))
	}
	return partitions
}

func (s step) task(cfg Config, r *strings.Replacer, client warehouse.Client) (dag.Task, error) {
	sql := r.Replace(s.sql)
	switch s.kind {
	case tasks.KindGate:
		return tasks.NewGate(s.id, sql, client)
	case tasks.KindTransform:
		dst := outputTable(cfg, s.table).String() + "${{ yesterday_ds_nodash }}"
		return tasks.NewTransform(s.id, sql, dst, client)
	}
	return nil, fmt.Errorf("unsupported kind %v of task %s", s.kind, s.id)
}

func outputTable(cfg Config, table string) warehouse.TableRef {
	return warehouse.TableRef{
		Project: cfg.Project,
		Dataset: cfg.Dataset,
		Table:   table,
	}
}

func taskConfigFuncs(cfg Config) []dag.TaskConfigFunc {
	funcs := []dag.TaskConfigFunc{
		dag.WithTaskRetries(cfg.Retries),
		dag.WithTaskRetriesDelay(cfg.RetryDelay),
		dag.WithTaskTimeout(cfg.Timeout),
		dag.WithDependsOnPast(cfg.DependsOnPast),
	}
	if cfg.AlertOnRetry {
		funcs = append(funcs, dag.WithTaskSendAlertOnRetries)
	}
	if cfg.Notifier != nil {
		funcs = append(funcs, dag.WithCustomNotifier(cfg.Notifier))
	}
	return funcs
}
