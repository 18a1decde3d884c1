// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/ppacer/trends/db"
)

// Client provides API for interacting with running Scheduler over HTTP.
type Client struct {
	httpClient   *http.Client
	schedulerUrl string
	logger       *slog.Logger
}

// NewClient instantiate new Client. In case when HTTP client or logger are
// nil, those would be initialized with default parameters.
func NewClient(
	schedulerUrl string, httpClient *http.Client, logger *slog.Logger,
	config ClientConfig,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.HttpClientTimeout}
	}
	if logger == nil {
		logger = defaultLogger()
	}
	return &Client{
		httpClient:   httpClient,
		schedulerUrl: strings.TrimRight(schedulerUrl, "/"),
		logger:       logger,
	}
}

// Health checks if the Scheduler is up and returns its version and
// registered DAGs.
func (c *Client) Health() (HealthOutput, error) {
	health, code, err := httpGetJSON[HealthOutput](
		c.httpClient, c.schedulerUrl+RouteHealth,
	)
	if err != nil {
		if !errors.Is(err, syscall.ECONNREFUSED) {
			c.logger.Error("Error while checking scheduler health", "err",
				err.Error())
		}
		return HealthOutput{}, err
	}
	if code != http.StatusOK {
		return HealthOutput{}, fmt.Errorf(
			"unexpected status code in Health request: %d", code)
	}
	return *health, nil
}

// LatestDagRuns returns n latest DAG runs. When dagId is empty, runs of all
// DAGs are considered.
func (c *Client) LatestDagRuns(dagId string, n int) ([]db.DagRun, error) {
	startTs := time.Now()
	q := url.Values{}
	q.Set("n", fmt.Sprintf("%d", n))
	if dagId != "" {
		q.Set("dagId", dagId)
	}
	endpoint := fmt.Sprintf("%s%s?%s", c.schedulerUrl, RouteDagRunsLatest,
		q.Encode())
	runs, code, err := httpGetJSON[[]db.DagRun](c.httpClient, endpoint)
	if err != nil {
		c.logger.Error("Error while getting latest DAG runs", "err",
			err.Error())
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf(
			"unexpected status code in LatestDagRuns request: %d", code)
	}
	c.logger.Debug("LatestDagRuns request finished", "duration",
		time.Since(startTs))
	return *runs, nil
}

// TriggerDagRun asks the Scheduler to start new DAG run for given logical
// date. The run is executed asynchronously by the Scheduler.
func (c *Client) TriggerDagRun(in TriggerInput) error {
	endpoint := c.schedulerUrl + RouteDagRunTrigger
	if err := httpPost(c.httpClient, endpoint, in); err != nil {
		return fmt.Errorf("cannot trigger DAG run %s for %s: %w", in.DagId,
			in.Date, err)
	}
	c.logger.Info("DAG run triggered", "dagId", in.DagId, "date", in.Date)
	return nil
}
