// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"time"
)

// Config represents main configuration for the Scheduler.
type Config struct {
	// Startup timeout duration. When scheduler call Start, it synchronize
	// DAGs and interrupted DAG runs with the database. This duration interval
	// is setup in Start context.
	StartupContextTimeout time.Duration

	// Capacity of the cache for finished DAG runs served by HTTP API.
	DagRunCacheLen int

	// Configuration for DagRunner.
	DagRunnerConfig DagRunnerConfig

	// Configuration for Watcher.
	WatcherConfig WatcherConfig
}

// Default Scheduler configuration.
var DefaultConfig Config = Config{
	StartupContextTimeout: 30 * time.Second,
	DagRunCacheLen:        1000,
	DagRunnerConfig:       DefaultDagRunnerConfig,
	WatcherConfig:         DefaultWatcherConfig,
}

// Configuration for DagRunner which evaluates single DAG run.
type DagRunnerConfig struct {
	// Timeout for archiving DAG run summary after the run is finished.
	ArchiveTimeout time.Duration

	// Timeout for sending single alert.
	AlertTimeout time.Duration
}

// Default DagRunner configuration.
var DefaultDagRunnerConfig DagRunnerConfig = DagRunnerConfig{
	ArchiveTimeout: 30 * time.Second,
	AlertTimeout:   30 * time.Second,
}

// Configuration for Watcher which is responsible for starting new DAG runs
// based on their schedule.
type WatcherConfig struct {
	// How often schedules are checked.
	WatchInterval time.Duration

	// Maximum number of DAG runs (different logical dates) of the same DAG
	// which can be in progress at the same time. DAGs with DependsOnPast
	// tasks are always run one date at the time.
	MaxConcurrentRuns int
}

// Default Watcher configuration.
var DefaultWatcherConfig WatcherConfig = WatcherConfig{
	WatchInterval:     10 * time.Second,
	MaxConcurrentRuns: 1,
}

// Configuration for Scheduler HTTP Client.
type ClientConfig struct {
	HttpClientTimeout time.Duration
}

// Default Client configuration.
var DefaultClientConfig ClientConfig = ClientConfig{
	HttpClientTimeout: 15 * time.Second,
}
