// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package tasks contains node kinds of warehouse DAGs. Gate checks that
// prerequisite data exists for the logical date, Transform runs a query and
// overwrites its destination partition.
package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/warehouse"
)

// ErrPrerequisiteNotReady is returned by Gate when its check query returned
// no rows. It's treated as a regular failure and retried by the scheduler.
var ErrPrerequisiteNotReady = errors.New("prerequisite data is not ready")

// Kind of a node.
type Kind int

const (
	KindGate Kind = iota
	KindTransform
)

// String serializes Kind.
func (k Kind) String() string {
	return [...]string{"gate", "transform"}[k]
}

// ParseKind parses Kind based on its string representation.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "gate":
		return KindGate, nil
	case "transform":
		return KindTransform, nil
	}
	return 0, fmt.Errorf("invalid node kind: %s", s)
}

// WarehouseTask is dag.Task which talks to the warehouse.
type WarehouseTask interface {
	dag.Task
	Kind() Kind
	Fingerprint() string

	// Query renders warehouse query for given logical date.
	Query(date time.Time) (warehouse.Query, error)
}

// Render returns rendered warehouse query of the task for given logical
// date. It doesn't call the warehouse.
func Render(task dag.Task, date time.Time) (warehouse.Query, error) {
	wt, ok := task.(WarehouseTask)
	if !ok {
		return warehouse.Query{}, fmt.Errorf("task %s (%T) is not a warehouse task",
			task.Id(), task)
	}
	return wt.Query(date)
}

func fingerprint(parts ...string) string {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write([]byte(p))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func labels(taskId string, date time.Time) map[string]string {
	return map[string]string{
		"task_id": taskId,
		"ds":      date.Format("2006-01-02"),
	}
}
