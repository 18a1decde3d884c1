// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"time"

	"github.com/ppacer/trends/timeutils"
	"github.com/spf13/pflag"
)

// dateValue is pflag.Value for logical dates in YYYY-MM-DD or YYYYMMDD
// format.
type dateValue struct {
	date *time.Time
}

var _ pflag.Value = dateValue{}

func newDateValue(target *time.Time) dateValue {
	return dateValue{date: target}
}

func (d dateValue) Set(s string) error {
	date, err := timeutils.ParseDate(s)
	if err != nil {
		return err
	}
	*d.date = date
	return nil
}

func (d dateValue) String() string {
	if d.date == nil || d.date.IsZero() {
		return ""
	}
	return timeutils.ToDateString(*d.date)
}

func (d dateValue) Type() string {
	return "date"
}

// dateVar defines date flag on given flag set.
func dateVar(fs *pflag.FlagSet, target *time.Time, name, usage string) {
	fs.Var(newDateValue(target), name, usage)
}

// rootFlags are persistent flags of the root command. Set flags take
// precedence over the config file and environment.
type rootFlags struct {
	configPath string
	dryRun     bool
	logLevel   string
	logFormat  string
	project    string
	dataset    string
	dbDriver   string
	dbDsn      string
	archiveUrl string
}

func (rf *rootFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&rf.configPath, "config", "c", "",
		"Path to YAML config file (default "+defaultConfigPath+" if exists)")
	fs.BoolVar(&rf.dryRun, "dry-run", false,
		"Use in-memory warehouse instead of BigQuery")
	fs.StringVarP(&rf.logLevel, "log-level", "l", "",
		"Log level: DEBUG | INFO | WARN | ERROR")
	fs.StringVar(&rf.logFormat, "log-format", "", "Log format: text | json")
	fs.StringVarP(&rf.project, "project", "p", "", "GCP project")
	fs.StringVarP(&rf.dataset, "dataset", "d", "", "BigQuery dataset")
	fs.StringVar(&rf.dbDriver, "db-driver", "", "Run store driver: sqlite | postgres")
	fs.StringVar(&rf.dbDsn, "db-dsn", "",
		"Run store DSN (sqlite file path, :memory: or postgres connection string)")
	fs.StringVar(&rf.archiveUrl, "archive-url", "",
		"Bucket URL for run summaries (file://, mem://, gs://, s3://)")
}

// apply overrides config values by flags which were set.
func (rf *rootFlags) apply(fs *pflag.FlagSet, cfg *AppConfig) {
	override := func(name string, value string, target *string) {
		if fs.Changed(name) {
			*target = value
		}
	}
	override("log-level", rf.logLevel, &cfg.Log.Level)
	override("log-format", rf.logFormat, &cfg.Log.Format)
	override("project", rf.project, &cfg.Trends.Project)
	override("dataset", rf.dataset, &cfg.Trends.Dataset)
	override("db-driver", rf.dbDriver, &cfg.Database.Driver)
	override("db-dsn", rf.dbDsn, &cfg.Database.DSN)
	override("archive-url", rf.archiveUrl, &cfg.Archive.URL)
}
