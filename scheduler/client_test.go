// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"testing"
	"time"
)

func TestClientHealthAndRuns(t *testing.T) {
	f := newApiFixture(t)
	f.runDag(t, 2)
	c := NewClient(f.server.URL+"/", nil, testLogger(), DefaultClientConfig)

	health, err := c.Health()
	if err != nil {
		t.Fatalf("Unexpected error from Health: %s", err.Error())
	}
	if health.Status != "OK" {
		t.Errorf("Expected status OK, got: %s", health.Status)
	}

	runs, rErr := c.LatestDagRuns("diamond", 3)
	if rErr != nil {
		t.Fatalf("Unexpected error from LatestDagRuns: %s", rErr.Error())
	}
	if len(runs) != 1 || runs[0].ExecTs != "2017-06-02" {
		t.Errorf("Unexpected DAG runs: %+v", runs)
	}
}

func TestClientTrigger(t *testing.T) {
	f := newApiFixture(t)
	c := NewClient(f.server.URL, nil, testLogger(), DefaultClientConfig)

	if err := c.TriggerDagRun(TriggerInput{DagId: "diamond", Date: "2017-06-04"}); err != nil {
		t.Fatalf("Unexpected error from TriggerDagRun: %s", err.Error())
	}
	if err := c.TriggerDagRun(TriggerInput{DagId: "unknown", Date: "2017-06-04"}); err == nil {
		t.Error("Expected error for unknown DAG")
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.dbClient.CountWhere("dagruns", "Status = 'SUCCESS'") < 1 {
		if time.Now().After(deadline) {
			t.Fatal("Triggered DAG run did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
