// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ppacer/trends/notify"
	"github.com/ppacer/trends/trends"
	"gopkg.in/yaml.v3"
)

// Prefix of environment variables which overrides config file values.
const envPrefix = "TRENDS_"

// Default path of the config file. It's fine when it does not exist.
const defaultConfigPath = "trends.yaml"

// AppConfig is the whole configuration of trends CLI.
type AppConfig struct {
	Trends    trends.Config       `yaml:"trends"`
	Warehouse WarehouseConfig     `yaml:"warehouse"`
	Database  DatabaseConfig      `yaml:"database"`
	Archive   ArchiveConfig       `yaml:"archive"`
	Server    ServerConfig        `yaml:"server"`
	Log       LogConfig           `yaml:"log"`
	Email     *notify.EmailConfig `yaml:"email,omitempty"`
}

type WarehouseConfig struct {
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentialsFile"`
	JobIdPrefix     string `yaml:"jobIdPrefix"`
}

// DatabaseConfig points to the run store. Driver is either sqlite or
// postgres. For sqlite DSN is the file path, ":memory:" keeps the data in
// memory.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ArchiveConfig sets bucket URL (file://, mem://, gs://, s3://) for
// summaries of finished DAG runs. Empty URL turns archiving off.
type ArchiveConfig struct {
	URL string `yaml:"url"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	WatchInterval     time.Duration `yaml:"watchInterval"`
	MaxConcurrentRuns int           `yaml:"maxConcurrentRuns"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultAppConfig returns configuration used when nothing is set
// explicitly.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Trends:    trends.DefaultConfig(),
		Warehouse: WarehouseConfig{JobIdPrefix: "trends"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "trends.db"},
		Server: ServerConfig{
			Port:              8080,
			WatchInterval:     time.Minute,
			MaxConcurrentRuns: 1,
		},
		Log: LogConfig{Level: "INFO", Format: "text"},
	}
}

// LoadConfig reads YAML config file on top of default configuration and
// applies TRENDS_* environment variables. Missing file is an error only
// when the path was given explicitly.
func LoadConfig(path string, lookupEnv func(string) (string, bool)) (AppConfig, error) {
	cfg := DefaultAppConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if yErr := yaml.Unmarshal(content, &cfg); yErr != nil {
			return cfg, fmt.Errorf("cannot parse config file %s: %w", path, yErr)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if eErr := applyEnv(&cfg, lookupEnv); eErr != nil {
		return cfg, eErr
	}
	return cfg, nil
}

// applyEnv overrides config values by environment variables.
func applyEnv(cfg *AppConfig, lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		return nil
	}
	str := func(name string, target *string) {
		if v, ok := lookupEnv(envPrefix + name); ok {
			*target = v
		}
	}
	str("PROJECT", &cfg.Trends.Project)
	str("DATASET", &cfg.Trends.Dataset)
	str("CREDENTIALS_FILE", &cfg.Warehouse.CredentialsFile)
	str("LOCATION", &cfg.Warehouse.Location)
	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_DSN", &cfg.Database.DSN)
	str("ARCHIVE_URL", &cfg.Archive.URL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookupEnv(envPrefix + "RETRIES"); ok {
		retries, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sRETRIES: %w", envPrefix, err)
		}
		cfg.Trends.Retries = retries
	}
	if v, ok := lookupEnv(envPrefix + "RETRY_DELAY"); ok {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sRETRY_DELAY: %w", envPrefix, err)
		}
		cfg.Trends.RetryDelay = delay
	}
	if v, ok := lookupEnv(envPrefix + "DEPENDS_ON_PAST"); ok {
		dependsOnPast, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEPENDS_ON_PAST: %w", envPrefix, err)
		}
		cfg.Trends.DependsOnPast = dependsOnPast
	}
	if v, ok := lookupEnv(envPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", envPrefix, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks configuration values which are not checked by particular
// components.
func (c AppConfig) Validate() error {
	if err := c.Trends.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q, expected sqlite or postgres",
			c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN cannot be empty")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q, expected text or json",
			c.Log.Format)
	}
	return nil
}
