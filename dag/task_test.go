// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import "testing"

type nameTask struct {
	Name string
}

func (nt nameTask) Id() string { return nt.Name }

func (nt nameTask) Execute(_ TaskContext) error {
	return nil
}

type sqlTask struct {
	Name string
	SQL  string
}

func (st sqlTask) Id() string                  { return st.Name }
func (st sqlTask) Execute(_ TaskContext) error { return nil }
func (st sqlTask) Fingerprint() string         { return st.SQL }

func TestTaskHashFingerprint(t *testing.T) {
	t1 := sqlTask{Name: "x", SQL: "SELECT 1"}
	t2 := sqlTask{Name: "x", SQL: "SELECT 2"}
	if TaskHash(t1) == TaskHash(t2) {
		t.Error("Expected different hashes for different fingerprints")
	}
	if TaskHash(t1) != TaskHash(sqlTask{Name: "y", SQL: "SELECT 1"}) {
		t.Error("Expected the same hash for the same fingerprint")
	}
}

func TestTaskHashTypeName(t *testing.T) {
	if TaskHash(nameTask{"a"}) != TaskHash(nameTask{"b"}) {
		t.Error("Expected the same hash for tasks of the same type without fingerprint")
	}
	if TaskHash(nameTask{"a"}) == TaskHash(sqlTask{Name: "a"}) {
		t.Error("Expected different hashes for different task types")
	}
}

func TestTaskStatusParse(t *testing.T) {
	statuses := []TaskStatus{
		TaskScheduled, TaskRunning, TaskFailed, TaskSuccess,
		TaskUpstreamFailed, TaskCancelled, TaskNoStatus,
	}
	for _, status := range statuses {
		parsed, err := ParseTaskStatus(status.String())
		if err != nil {
			t.Errorf("Cannot parse %s: %s", status.String(), err.Error())
		}
		if parsed != status {
			t.Errorf("Expected %s, got: %s", status, parsed)
		}
	}
	if _, err := ParseTaskStatus("success"); err == nil {
		t.Error("Expected error for lower case status")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskScheduled:      false,
		TaskRunning:        false,
		TaskFailed:         true,
		TaskSuccess:        true,
		TaskUpstreamFailed: true,
		TaskCancelled:      true,
		TaskNoStatus:       false,
	}
	for status, expected := range terminal {
		if status.IsTerminal() != expected {
			t.Errorf("Expected %s.IsTerminal()=%v", status, expected)
		}
	}
	if !TaskSuccess.CanProceed() || TaskFailed.CanProceed() {
		t.Error("Only SUCCESS should let downstream tasks proceed")
	}
}

func TestRunStatusParse(t *testing.T) {
	statuses := []RunStatus{
		RunScheduled, RunRunning, RunSuccess, RunFailed, RunCancelled,
	}
	for _, status := range statuses {
		parsed, err := ParseRunStatus(status.String())
		if err != nil {
			t.Errorf("Cannot parse %s: %s", status.String(), err.Error())
		}
		if parsed != status {
			t.Errorf("Expected %s, got: %s", status, parsed)
		}
	}
	if RunRunning.IsTerminal() {
		t.Error("RUNNING should not be terminal")
	}
}
