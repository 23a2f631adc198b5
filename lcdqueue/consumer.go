// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskState is the scheduling state of the consumer.
type TaskState int

const (
	// TaskRunnable means the consumer services the queue on every tick.
	TaskRunnable TaskState = iota
	// TaskSuspended means the queue drained and the consumer is parked
	// until the next enqueue.
	TaskSuspended
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// State returns the consumer state.
func (dev *Dev) State() TaskState {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.state
}

// TransmitNext sends the oldest queued unit. Units that need no execution
// time are followed immediately by the next one, until a unit with a non
// zero execution time has been sent or the queue is empty.
//
// Returns ErrBufferEmpty if nothing is queued. On a *TransportError the
// failed unit is gone from the queue all the same.
//
// Only the consumer may call TransmitNext.
func (dev *Dev) TransmitNext() error {
	_, err := dev.transmit()
	return err
}

func (dev *Dev) transmit() (Unit, error) {
	var last Unit
	for sent := 0; ; sent++ {
		dev.mu.Lock()
		u, ok := dev.q.pop()
		dev.sending = ok
		dev.mu.Unlock()
		if !ok {
			if sent == 0 {
				return last, ErrBufferEmpty
			}
			return last, nil
		}
		last = u
		err := dev.send(u)
		dev.mu.Lock()
		dev.sending = false
		dev.mu.Unlock()
		if err != nil {
			return last, &TransportError{Unit: u, Err: err}
		}
		if u.ExecTicks != 0 {
			return last, nil
		}
	}
}

func (dev *Dev) send(u Unit) error {
	if dev.probe && !dev.t.Ready() {
		return ErrDeviceNotReady
	}
	return dev.t.Tx(encode(u))
}

// HandleTick runs one consumer step. It parks the consumer when the queue
// is empty. Otherwise, once the execution time of the previous unit has
// elapsed, it transmits.
//
// Only the consumer may call HandleTick.
func (dev *Dev) HandleTick() error {
	now := dev.clock.Now()
	if dev.cooldownUntil-now > dev.cooldown {
		// The clock ran more than half its range past the deadline, which
		// then looks like it is in the future again.
		dev.cooldownUntil, dev.cooldown = now, 0
	}
	dev.mu.Lock()
	if dev.q.len() == 0 {
		suspend := dev.state != TaskSuspended
		dev.state = TaskSuspended
		dev.mu.Unlock()
		if !now.Before(dev.cooldownUntil) {
			dev.cooldownUntil, dev.cooldown = now, 0
		}
		if suspend {
			dev.log.Debug("queue empty, consumer suspended")
		}
		return nil
	}
	dev.mu.Unlock()
	if now.Before(dev.cooldownUntil) {
		return nil
	}
	u, err := dev.transmit()
	if errors.Is(err, ErrBufferEmpty) {
		return nil
	}
	dev.cooldown = Tick(u.ExecTicks)
	dev.cooldownUntil = now + dev.cooldown
	return err
}

// Run is the consumer. It services the queue at the tick rate, parks while
// the queue is empty, and returns ctx.Err() once ctx is done.
//
// Run one consumer per Dev.
func (dev *Dev) Run(ctx context.Context) error {
	period := dev.freq.Period()
	if period <= 0 {
		period = time.Millisecond
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		if dev.State() == TaskSuspended {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-dev.wake:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := dev.HandleTick(); err != nil {
			entry := dev.log.WithError(err)
			var te *TransportError
			if errors.As(err, &te) {
				entry = entry.WithFields(logrus.Fields{
					"unit": fmt.Sprintf("%#02x", te.Unit.Payload),
					"mode": te.Unit.Mode.String(),
				})
			}
			entry.Warn("transmit failed")
		}
	}
}

// idle reports whether every queued unit has been sent.
func (dev *Dev) idle() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.q.len() == 0 && !dev.sending
}

// Drain waits until the consumer has sent every queued unit, or ctx is
// done.
func (dev *Dev) Drain(ctx context.Context) error {
	period := dev.freq.Period()
	if period < time.Millisecond {
		period = time.Millisecond
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for !dev.idle() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d units left: %w", ErrTimeout, dev.Len(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}
