// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/scheduler"
	"github.com/ppacer/trends/tasks"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/trends"
	"github.com/ppacer/trends/version"
	"github.com/spf13/cobra"
)

func (c *cli) runCmd() *cobra.Command {
	var date time.Time
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole DAG for single logical date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.app.Dag(cmd.Context())
			if err != nil {
				return err
			}
			runner, err := c.app.Runner(cmd.Context())
			if err != nil {
				return err
			}
			// Manual runs do not move the watcher position.
			res, err := runner.RunWithEvent(cmd.Context(), d, date,
				schedule.ManuallyTriggered)
			if err != nil {
				return err
			}
			printRunResult(cmd.OutOrStdout(), &d, res)
			return runStatusErr(res)
		},
	}
	dateVar(cmd.Flags(), &date, "date", "Logical date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (c *cli) testCmd() *cobra.Command {
	var date time.Time
	cmd := &cobra.Command{
		Use:   "test TASK_ID",
		Short: "Run single task for logical date without dependencies and state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.Dag(cmd.Context())
			if err != nil {
				return err
			}
			tErr := scheduler.RunTask(cmd.Context(), d, date, args[0],
				c.app.logger)
			if tErr != nil {
				return fmt.Errorf("task %s failed for %s: %w", args[0],
					timeutils.ToDateString(date), tErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tSUCCESS\n", args[0],
				timeutils.ToDateString(date))
			return nil
		},
	}
	dateVar(cmd.Flags(), &date, "date", "Logical date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (c *cli) backfillCmd() *cobra.Command {
	var from, to time.Time
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run the DAG for every logical date in range, in ascending order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.app.Dag(cmd.Context())
			if err != nil {
				return err
			}
			runner, err := c.app.Runner(cmd.Context())
			if err != nil {
				return err
			}
			results, bErr := runner.Backfill(cmd.Context(), d, from, to)
			out := cmd.OutOrStdout()
			failed := 0
			for _, res := range results {
				fmt.Fprintf(out, "%s\t%d\t%s\n",
					timeutils.ToDateString(res.ExecTs), res.RunId,
					res.Status.String())
				if res.Status != dag.RunSuccess {
					failed++
				}
			}
			if bErr != nil {
				return bErr
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d DAG runs did not succeed", failed,
					len(results))
			}
			return nil
		},
	}
	dateVar(cmd.Flags(), &from, "from", "First logical date (inclusive)")
	dateVar(cmd.Flags(), &to, "to", "Last logical date (inclusive)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var date time.Time
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print status of the latest DAG run for logical date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbClient, err := c.app.DB()
			if err != nil {
				return err
			}
			execTs := timeutils.ToDateString(date)
			dagRun, err := dbClient.ReadDagRunByExecTs(cmd.Context(),
				string(trends.DagId), execTs)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("there is no DAG run for %s", execTs)
			}
			if err != nil {
				return err
			}
			attempts, err := dbClient.ReadDagRunTasks(cmd.Context(),
				dagRun.RunId)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DAG run %d for %s: %s (%s)\n", dagRun.RunId,
				dagRun.ExecTs, dagRun.Status, dagRun.Event)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tRETRY\tSTATUS\tERROR")
			for _, a := range attempts {
				errMsg := ""
				if a.Error != nil {
					errMsg = firstLine(*a.Error)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.TaskId, a.Retry,
					a.Status, errMsg)
			}
			return w.Flush()
		},
	}
	dateVar(cmd.Flags(), &date, "date", "Logical date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (c *cli) graphCmd() *cobra.Command {
	var dot bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the DAG structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.app.Dag(cmd.Context())
			if err != nil {
				return err
			}
			if dot {
				printDot(cmd.OutOrStdout(), &d)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), d.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dot, "dot", false, "Print graph in Graphviz DOT format")
	return cmd
}

func (c *cli) renderCmd() *cobra.Command {
	var date time.Time
	cmd := &cobra.Command{
		Use:   "render TASK_ID",
		Short: "Print rendered query of the task for logical date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.Dag(cmd.Context())
			if err != nil {
				return err
			}
			task, err := d.GetTask(args[0])
			if err != nil {
				return err
			}
			q, err := tasks.Render(task, date)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "-- task: %s\n-- dialect: %s\n", args[0],
				q.ResolvedDialect().String())
			if q.Destination != nil {
				fmt.Fprintf(out, "-- destination: %s (%s)\n",
					q.Destination.String(), q.WriteMode.String())
			}
			fmt.Fprintln(out, strings.TrimSpace(q.SQL))
			return nil
		},
	}
	dateVar(cmd.Flags(), &date, "date", "Logical date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (c *cli) provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create day-partitioned output tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wh, err := c.app.Warehouse(cmd.Context())
			if err != nil {
				return err
			}
			for _, table := range trends.Tables(c.app.cfg.Trends) {
				if err := wh.CreatePartitionedTable(cmd.Context(), table); err != nil {
					return fmt.Errorf("cannot create table %s: %w",
						table.String(), err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), table.String())
			}
			return nil
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "trends %s\n", version.Version)
			return nil
		},
	}
}

func printRunResult(out io.Writer, d *dag.Dag, res scheduler.RunResult) {
	fmt.Fprintf(out, "DAG run %d for %s: %s in %v\n", res.RunId,
		timeutils.ToDateString(res.ExecTs), res.Status.String(),
		res.EndTs.Sub(res.StartTs).Round(time.Millisecond))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tATTEMPTS\tERROR")
	for _, taskId := range d.TaskIds() {
		ts := res.Tasks[taskId]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", taskId, ts.Status.String(),
			ts.Attempts, firstLine(ts.Error))
	}
	w.Flush()
}

func runStatusErr(res scheduler.RunResult) error {
	if res.Status == dag.RunSuccess {
		return nil
	}
	return fmt.Errorf("DAG run %d for %s finished with status %s", res.RunId,
		timeutils.ToDateString(res.ExecTs), res.Status.String())
}

func printDot(out io.Writer, d *dag.Dag) {
	fmt.Fprintf(out, "digraph %q {\n", string(d.Id))
	for _, taskId := range d.TaskIds() {
		children := d.Children(taskId)
		sort.Strings(children)
		if len(children) == 0 {
			fmt.Fprintf(out, "  %q;\n", taskId)
			continue
		}
		for _, child := range children {
			fmt.Fprintf(out, "  %q -> %q;\n", taskId, child)
		}
	}
	fmt.Fprintln(out, "}")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
