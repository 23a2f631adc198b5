// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdqueue

import (
	"errors"
	"fmt"
	"strings"
)

const packageName = "lcdqueue"

var (
	// ErrBufferFull is returned by producers when the queue is at capacity.
	// The caller may retry later.
	ErrBufferFull = errors.New("lcdqueue: buffer full")
	// ErrBufferEmpty is returned by TransmitNext when nothing is queued.
	ErrBufferEmpty = errors.New("lcdqueue: buffer empty")
	// ErrInvalidPosition is returned for a line or column outside of the
	// display geometry.
	ErrInvalidPosition = errors.New("lcdqueue: invalid position")
	// ErrDeviceNotReady is returned when the readiness probe fails.
	ErrDeviceNotReady = errors.New("lcdqueue: device not ready")
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("lcdqueue: timeout")
)

// TransportError is returned by the consumer when a unit could not be sent.
// The unit has been removed from the queue regardless.
type TransportError struct {
	Unit Unit
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transmit %s: %v", packageName, e.Unit, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func wrap(err error) error {
	if err == nil || strings.HasPrefix(err.Error(), packageName) {
		return err
	}
	return fmt.Errorf("%s: %w", packageName, err)
}
