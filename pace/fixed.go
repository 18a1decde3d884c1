// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package pace

import "time"

// Fixed returns the same interval every time.
type Fixed struct {
	interval time.Duration
}

// NewFixed creates Fixed strategy. Non-positive interval means no waiting.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{interval: interval}
}

func (f *Fixed) NextInterval() time.Duration { return f.interval }
func (f *Fixed) Reset()                      {}
