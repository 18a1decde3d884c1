// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Command trends runs the daily GitHub trends pipeline on BigQuery. It can
// run single logical dates, backfill date ranges or serve as a long-running
// scheduler with HTTP status API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// cli is shared state of all commands within single execution.
type cli struct {
	flags rootFlags
	app   *app
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	c := &cli{}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	defer c.close()
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trends",
		Short: "Daily GitHub and Hacker News trends pipeline on BigQuery",
		Long: `trends builds daily GitHub activity metrics and their Hacker News
mentions in BigQuery. Every logical date is processed by a DAG of seven
tasks: two prerequisite checks, four partition writes and a final check.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	cobra.EnableCommandSorting = false
	c.flags.register(root.PersistentFlags())
	root.AddCommand(
		c.runCmd(),
		c.testCmd(),
		c.backfillCmd(),
		c.serveCmd(),
		c.triggerCmd(),
		c.statusCmd(),
		c.graphCmd(),
		c.renderCmd(),
		c.provisionCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(c.flags.configPath, os.LookupEnv)
	if err != nil {
		return err
	}
	c.flags.apply(cmd.Flags(), &cfg)
	a, err := newApp(cfg, c.flags.dryRun, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot close resources: %s\n", err.Error())
	}
}
