// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package version holds the build version stored along DAG runs.
package version

// Version is overridden at build time via -ldflags "-X".
var Version = "0.1.0-dev"
