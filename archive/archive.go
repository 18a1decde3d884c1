// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package archive stores summaries of finished DAG runs in a blob bucket as
// zstd-compressed JSON documents. Keys follow runs/<dagId>/<ds>.json.zst
// pattern, so the latest run for given logical date overwrites previous ones.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ppacer/trends/timeutils"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	keyPrefix = "runs"
	keySuffix = ".json.zst"
)

// ErrNotFound is returned when there's no archived summary for given key.
var ErrNotFound = errors.New("run summary not found in archive")

// TaskSummary is the final state of a single task within a DAG run.
type TaskSummary struct {
	TaskId   string `json:"taskId"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// RunSummary is the final state of a DAG run.
type RunSummary struct {
	RunId   int64         `json:"runId"`
	DagId   string        `json:"dagId"`
	ExecTs  string        `json:"execTs"`
	Status  string        `json:"status"`
	StartTs time.Time     `json:"startTs"`
	EndTs   time.Time     `json:"endTs"`
	Tasks   []TaskSummary `json:"tasks"`
}

// Store puts and gets run summaries in a blob bucket.
type Store struct {
	bucket  *blob.Bucket
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
}

// Open opens bucket of given URL (file://, mem://, gs://, s3://) and
// returns new Store. In case when logger is nil, default logger would be
// used.
func Open(ctx context.Context, bucketURL string, logger *slog.Logger) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return New(bucket, logger)
}

// New creates Store on already opened bucket.
func New(bucket *blob.Bucket, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		opts := slog.HandlerOptions{Level: slog.LevelInfo}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &opts))
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{bucket: bucket, encoder: enc, decoder: dec, logger: logger}, nil
}

// Close closes the bucket and releases compression resources.
func (s *Store) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return s.bucket.Close()
}

// Key returns bucket key of run summary for given DAG and logical date.
func Key(dagId string, execTs time.Time) string {
	return path.Join(keyPrefix, dagId, timeutils.ToDateString(execTs)+keySuffix)
}

// Put writes the summary into the bucket, overwriting previous summary for
// the same DAG and logical date.
func (s *Store) Put(ctx context.Context, summary RunSummary) error {
	execTs, err := timeutils.ParseDate(summary.ExecTs)
	if err != nil {
		return fmt.Errorf("invalid ExecTs in run summary: %w", err)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	key := Key(summary.DagId, execTs)
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(compressed); err != nil {
		w.Close()
		return fmt.Errorf("write run summary to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	s.logger.Debug("Archived run summary", "key", key, "bytes",
		len(compressed), "rawBytes", len(data))
	return nil
}

// Get reads run summary for given DAG and logical date. ErrNotFound is
// returned when it's not archived.
func (s *Store) Get(ctx context.Context, dagId string, execTs time.Time) (RunSummary, error) {
	key := Key(dagId, execTs)
	compressed, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("read %s: %w", key, err)
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return RunSummary{}, fmt.Errorf("zstd decompress %s: %w", key, err)
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return summary, nil
}

// List returns logical dates (YYYY-MM-DD) of archived runs of given DAG in
// ascending order.
func (s *Store) List(ctx context.Context, dagId string) ([]string, error) {
	prefix := path.Join(keyPrefix, dagId) + "/"
	it := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	dates := make([]string, 0)
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, keySuffix) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, keySuffix))
	}
	return dates, nil
}
