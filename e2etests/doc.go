// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package e2etests runs the github trends DAG end to end against in-memory
// warehouse and in-memory SQLite database.
package e2etests
