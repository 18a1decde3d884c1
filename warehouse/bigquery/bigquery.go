// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package bigquery implements warehouse.Client on Google BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/ppacer/trends/pace"
	"github.com/ppacer/trends/warehouse"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Config for BigQuery client.
type Config struct {
	Project         string
	Location        string
	CredentialsFile string

	// JobIdPrefix is used for every job id, when query has no "task_id"
	// label.
	JobIdPrefix string

	// Job status polling intervals.
	PollMin  time.Duration
	PollMax  time.Duration
	PollStep time.Duration
}

// DefaultConfig returns default Config for given project.
func DefaultConfig(project string) Config {
	return Config{
		Project:     project,
		JobIdPrefix: "trends",
		PollMin:     500 * time.Millisecond,
		PollMax:     10 * time.Second,
		PollStep:    500 * time.Millisecond,
	}
}

// Client is warehouse.Client on BigQuery.
type Client struct {
	bq     *bq.Client
	config Config
	logger *slog.Logger
}

// New creates new BigQuery client. Credentials are taken from
// Config.CredentialsFile or from Application Default Credentials when the
// path is empty. In case when logger is nil, default logger would be used.
func New(ctx context.Context, config Config, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		opts := slog.HandlerOptions{Level: slog.LevelInfo}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &opts))
	}
	if config.Project == "" {
		return nil, errors.New("BigQuery project cannot be empty")
	}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := bq.NewClient(ctx, config.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create BigQuery client: %w", err)
	}
	if config.Location != "" {
		client.Location = config.Location
	}
	return &Client{bq: client, config: config, logger: logger}, nil
}

// Close closes underlying BigQuery client.
func (c *Client) Close() error {
	return c.bq.Close()
}

// Run submits the query as BigQuery job and polls its status until it's
// done.
func (c *Client) Run(ctx context.Context, q warehouse.Query) (warehouse.JobStatus, error) {
	if err := q.Validate(); err != nil {
		return warehouse.JobStatus{}, err
	}
	start := time.Now()
	query := c.buildQuery(q)
	job, err := query.Run(ctx)
	if err != nil {
		return warehouse.JobStatus{}, ClassifyError(err)
	}
	c.logger.Info("BigQuery job submitted", "jobId", job.ID(),
		"destination", destString(q.Destination))

	status, err := c.waitForJob(ctx, job)
	if err != nil {
		return warehouse.JobStatus{JobId: job.ID()}, err
	}
	js := warehouse.JobStatus{
		JobId:    job.ID(),
		Done:     true,
		Duration: time.Since(start),
	}
	if stats := status.Statistics; stats != nil {
		js.BytesProcessed = stats.TotalBytesProcessed
		if qs, ok := stats.Details.(*bq.QueryStatistics); ok {
			js.RowsWritten = qs.NumDMLAffectedRows
		}
	}
	return js, nil
}

// Check runs the query and reads at most one row from its result.
func (c *Client) Check(ctx context.Context, q warehouse.Query) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	query := c.buildQuery(q)
	it, err := query.Read(ctx)
	if err != nil {
		return false, ClassifyError(err)
	}
	var row []bq.Value
	nextErr := it.Next(&row)
	if nextErr == iterator.Done {
		return false, nil
	}
	if nextErr != nil {
		return false, ClassifyError(nextErr)
	}
	return true, nil
}

// CreatePartitionedTable creates table partitioned by day. Already existing
// table is not considered an error.
func (c *Client) CreatePartitionedTable(ctx context.Context, ref warehouse.TableRef) error {
	table := c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
	meta := bq.TableMetadata{
		TimePartitioning: &bq.TimePartitioning{Type: bq.DayPartitioningType},
	}
	err := table.Create(ctx, &meta)
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusConflict {
		c.logger.Info("Table already exists", "table", ref.Whole().String())
		return nil
	}
	if err != nil {
		return ClassifyError(err)
	}
	c.logger.Info("Created day-partitioned table", "table", ref.Whole().String())
	return nil
}

func (c *Client) buildQuery(q warehouse.Query) *bq.Query {
	query := c.bq.Query(q.SQL)
	query.UseLegacySQL = q.ResolvedDialect() == warehouse.DialectLegacy
	query.AllowLargeResults = q.AllowLargeResults
	query.JobID = JobId(c.jobIdPrefix(q))
	if len(q.Labels) > 0 {
		query.Labels = make(map[string]string, len(q.Labels))
		for k, v := range q.Labels {
			query.Labels[labelValue(k)] = labelValue(v)
		}
	}
	if q.Destination != nil {
		d := q.Destination
		query.Dst = c.bq.DatasetInProject(d.Project, d.Dataset).Table(d.PartitionDecorator())
		query.CreateDisposition = bq.CreateIfNeeded
		query.WriteDisposition = writeDisposition(q.WriteMode)
	}
	return query
}

func (c *Client) jobIdPrefix(q warehouse.Query) string {
	if taskId, ok := q.Labels["task_id"]; ok && taskId != "" {
		return taskId
	}
	return c.config.JobIdPrefix
}

// waitForJob polls job status with linear backoff until the job is done or
// the context is cancelled. Cancelled context also cancels the job.
func (c *Client) waitForJob(ctx context.Context, job *bq.Job) (*bq.JobStatus, error) {
	backoff, err := pace.NewLinearBackoff(pace.LinearConfig{
		Min:    c.config.PollMin,
		Max:    c.config.PollMax,
		Step:   c.config.PollStep,
		Repeat: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid polling config: %w", err)
	}
	for {
		status, err := job.Status(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.cancelJob(job)
				return nil, ctxErr
			}
			return nil, ClassifyError(err)
		}
		if status.Done() {
			if jobErr := status.Err(); jobErr != nil {
				return status, fmt.Errorf("%w: job %s: %w",
					warehouse.ErrQueryFailed, job.ID(), jobErr)
			}
			return status, nil
		}
		if wErr := pace.Wait(ctx, backoff); wErr != nil {
			c.cancelJob(job)
			return nil, wErr
		}
	}
}

func (c *Client) cancelJob(job *bq.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := job.Cancel(ctx); err != nil {
		c.logger.Warn("Cannot cancel BigQuery job", "jobId", job.ID(),
			"err", err.Error())
	}
}

// ClassifyError wraps BigQuery API errors. Rate limiting and server errors
// are wrapped with warehouse.ErrTransient, other API errors with
// warehouse.ErrQueryFailed.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500 {
			return fmt.Errorf("%w: %w", warehouse.ErrTransient, err)
		}
		return fmt.Errorf("%w: %w", warehouse.ErrQueryFailed, err)
	}
	return fmt.Errorf("%w: %w", warehouse.ErrTransient, err)
}

// JobId returns new unique BigQuery job id with given prefix.
func JobId(prefix string) string {
	p := jobIdInvalidChars.ReplaceAllString(prefix, "_")
	if p == "" {
		return uuid.NewString()
	}
	return p + "_" + uuid.NewString()
}

func writeDisposition(mode warehouse.WriteMode) bq.TableWriteDisposition {
	switch mode {
	case warehouse.WriteAppend:
		return bq.WriteAppend
	case warehouse.WriteTruncate:
		return bq.WriteTruncate
	}
	return bq.WriteEmpty
}

var (
	jobIdInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	labelInvalidChars = regexp.MustCompile(`[^a-z0-9_-]`)
)

// labelValue lowercases and replaces characters not allowed in BigQuery
// labels.
func labelValue(s string) string {
	v := labelInvalidChars.ReplaceAllString(strings.ToLower(s), "_")
	if len(v) > 63 {
		v = v[:63]
	}
	return v
}

func destString(ref *warehouse.TableRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}
