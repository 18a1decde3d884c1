// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, DefaultAppConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	assert.Error(t, err)
}

func TestLoadConfigFromYaml(t *testing.T) {
	content := `
trends:
  project: acme-analytics
  dataset: trends_prod
  retries: 2
  retryDelay: 90s
  timeout: 1h
  dependsOnPast: true
  startDate: 2020-01-15
  schedule: "30 22 * * *"
warehouse:
  location: EU
  credentialsFile: /secrets/sa.json
database:
  driver: postgres
  dsn: postgres://trends@localhost/trends?sslmode=disable
archive:
  url: gs://acme-trends-archive
server:
  port: 9090
  maxConcurrentRuns: 3
log:
  level: DEBUG
  format: json
email:
  host: smtp.acme.com
  to: [data-alerts@acme.com]
`
	path := filepath.Join(t.TempDir(), "trends.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "acme-analytics", cfg.Trends.Project)
	assert.Equal(t, "trends_prod", cfg.Trends.Dataset)
	assert.Equal(t, 2, cfg.Trends.Retries)
	assert.Equal(t, 90*time.Second, cfg.Trends.RetryDelay)
	assert.Equal(t, time.Hour, cfg.Trends.Timeout)
	assert.True(t, cfg.Trends.DependsOnPast)
	assert.Equal(t, time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC),
		cfg.Trends.StartDate)
	assert.Equal(t, "30 22 * * *", cfg.Trends.Schedule)
	assert.Equal(t, "EU", cfg.Warehouse.Location)
	assert.Equal(t, "/secrets/sa.json", cfg.Warehouse.CredentialsFile)
	assert.Equal(t, "trends", cfg.Warehouse.JobIdPrefix, "defaults are kept")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "gs://acme-trends-archive", cfg.Archive.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, time.Minute, cfg.Server.WatchInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	require.NotNil(t, cfg.Email)
	assert.Equal(t, []string{"data-alerts@acme.com"}, cfg.Email.To)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trends: [not, a, map"), 0o600))
	_, err := LoadConfig(path, noEnv)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	env := envMap(map[string]string{
		"TRENDS_PROJECT":         "env-project",
		"TRENDS_DATASET":         "env_dataset",
		"TRENDS_RETRIES":         "7",
		"TRENDS_RETRY_DELAY":     "10s",
		"TRENDS_DEPENDS_ON_PAST": "true",
		"TRENDS_DB_DSN":          ":memory:",
		"TRENDS_PORT":            "8181",
	})
	cfg, err := LoadConfig("", env)
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.Trends.Project)
	assert.Equal(t, "env_dataset", cfg.Trends.Dataset)
	assert.Equal(t, 7, cfg.Trends.Retries)
	assert.Equal(t, 10*time.Second, cfg.Trends.RetryDelay)
	assert.True(t, cfg.Trends.DependsOnPast)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadConfigInvalidEnv(t *testing.T) {
	for _, key := range []string{"TRENDS_RETRIES", "TRENDS_RETRY_DELAY", "TRENDS_DEPENDS_ON_PAST", "TRENDS_PORT"} {
		_, err := LoadConfig("", envMap(map[string]string{key: "not-a-value"}))
		assert.Error(t, err, key)
	}
}

func TestAppConfigValidate(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = DefaultAppConfig()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = DefaultAppConfig()
	cfg.Trends.Project = ""
	assert.Error(t, cfg.Validate())
}

func TestDateValue(t *testing.T) {
	var date time.Time
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	dateVar(fs, &date, "date", "")

	require.NoError(t, fs.Parse([]string{"--date", "2017-06-02"}))
	assert.Equal(t, time.Date(2017, time.June, 2, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, "2017-06-02", fs.Lookup("date").Value.String())
	assert.Equal(t, "date", fs.Lookup("date").Value.Type())

	require.NoError(t, fs.Set("date", "20170605"))
	assert.Equal(t, time.Date(2017, time.June, 5, 0, 0, 0, 0, time.UTC), date)

	assert.Error(t, fs.Set("date", "June 5th"))
}

func TestRootFlagsOverrideConfig(t *testing.T) {
	var rf rootFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	rf.register(fs)
	require.NoError(t, fs.Parse([]string{"--project", "flag-project",
		"--db-dsn", ":memory:", "--log-format", "json"}))

	cfg := DefaultAppConfig()
	rf.apply(fs, &cfg)
	assert.Equal(t, "flag-project", cfg.Trends.Project)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "github_trends", cfg.Trends.Dataset, "unset flags do not override")
}
