// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdqueue

import (
	"math"
	"math/bits"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Tick is a scheduler tick count. It wraps around; use Before to compare
// ticks.
type Tick uint32

// Before reports whether t comes before u, allowing for wrap around.
func (t Tick) Before(u Tick) bool {
	return int32(t-u) < 0
}

// Clock is the time source of the consumer.
type Clock interface {
	// Now returns the current tick.
	Now() Tick
	// Frequency returns the tick rate.
	Frequency() physic.Frequency
}

type monotonicClock struct {
	start  time.Time
	freq   physic.Frequency
	period time.Duration
}

// NewMonotonicClock returns a Clock counting ticks at freq from now, based on
// the monotonic clock of the runtime.
func NewMonotonicClock(freq physic.Frequency) Clock {
	period := freq.Period()
	if period <= 0 {
		period = time.Nanosecond
	}
	return &monotonicClock{start: time.Now(), freq: freq, period: period}
}

func (c *monotonicClock) Now() Tick {
	return Tick(time.Since(c.start) / c.period)
}

func (c *monotonicClock) Frequency() physic.Frequency {
	return c.freq
}

// ticks converts a device latency into a tick count at freq, rounding up.
// The result saturates at half the Tick range so that deadlines stay
// comparable with Before.
func ticks(d time.Duration, freq physic.Frequency) uint32 {
	if d <= 0 || freq <= 0 {
		return 0
	}
	// d is in ns and freq in µHz.
	const den = uint64(time.Second) * uint64(physic.Hertz)
	hi, lo := bits.Mul64(uint64(d), uint64(freq))
	if hi >= den {
		return math.MaxInt32
	}
	q, rem := bits.Div64(hi, lo, den)
	if rem != 0 {
		q++
	}
	if q > math.MaxInt32 {
		return math.MaxInt32
	}
	return uint32(q)
}
