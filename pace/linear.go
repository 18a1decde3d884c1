// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package pace

import (
	"errors"
	"fmt"
	"time"
)

// LinearConfig configures LinearBackoff. Each interval is repeated Repeat
// times before it grows by Step, until it reaches Max.
type LinearConfig struct {
	Min    time.Duration
	Max    time.Duration
	Step   time.Duration
	Repeat int
}

// Validate checks that durations are non-negative, Max is greater than Min
// and Repeat is at least 1.
func (c LinearConfig) Validate() error {
	if c.Min < 0 || c.Max < 0 || c.Step < 0 {
		return errors.New("min, max and step cannot be negative")
	}
	if c.Max <= c.Min {
		return fmt.Errorf("max should be greater than min (min:%v, max:%v)",
			c.Min, c.Max)
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat needs to be at least 1, got: %d", c.Repeat)
	}
	return nil
}

// LinearBackoff grows intervals linearly. For Min=1s, Max=5s, Step=2s and
// Repeat=1 consecutive intervals are 1s, 3s, 5s, 5s and so on until Reset.
type LinearBackoff struct {
	cfg     LinearConfig
	current time.Duration
	used    int
}

// NewLinearBackoff creates LinearBackoff or returns validation error of the
// config.
func NewLinearBackoff(cfg LinearConfig) (*LinearBackoff, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LinearBackoff{cfg: cfg, current: cfg.Min}, nil
}

// NextInterval returns the current interval and moves the backoff forward.
func (lb *LinearBackoff) NextInterval() time.Duration {
	if lb.used == lb.cfg.Repeat {
		lb.used = 0
		lb.current = min(lb.current+lb.cfg.Step, lb.cfg.Max)
	}
	lb.used++
	return lb.current
}

// Reset makes the next interval equal to Min again.
func (lb *LinearBackoff) Reset() {
	lb.current = lb.cfg.Min
	lb.used = 0
}
