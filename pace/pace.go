// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package pace controls intervals between repeated actions, like delays
// between task retries or polling warehouse job status.
package pace

import (
	"context"
	"time"
)

// Strategy produces consecutive intervals. Reset brings the strategy back to
// its initial interval.
type Strategy interface {
	NextInterval() time.Duration
	Reset()
}

// Wait blocks for the next interval of given strategy. It returns context
// error, when the context is done before the interval passes.
func Wait(ctx context.Context, s Strategy) error {
	interval := s.NextInterval()
	if interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
