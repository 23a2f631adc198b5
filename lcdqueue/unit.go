// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdqueue

import "fmt"

// Mode selects the state of the register select line while a Unit is
// clocked into the display.
type Mode byte

const (
	// ModeCommand sends the payload as an instruction (RS low).
	ModeCommand Mode = iota
	// ModeData sends the payload as a character (RS high).
	ModeData
	// ModeNibble sends only the low 4 bits of the payload as a single
	// instruction nibble. It is needed during the power-on sequence, while
	// the controller is still in 8 bit interface mode.
	ModeNibble
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "command"
	case ModeData:
		return "data"
	case ModeNibble:
		return "nibble"
	default:
		return fmt.Sprintf("Mode(%d)", byte(m))
	}
}

// Unit is one queued transmission to the display.
type Unit struct {
	Payload byte
	Mode    Mode
	// ExecTicks is the number of scheduler ticks the display needs after
	// this unit before it accepts the next one. Zero means the next unit can
	// follow immediately.
	ExecTicks uint32
}

func (u Unit) String() string {
	return fmt.Sprintf("%s(%#02x, %d ticks)", u.Mode, u.Payload, u.ExecTicks)
}

// ring is a fixed capacity FIFO of units. Units are pushed at head and
// popped at tail. It is not safe for concurrent use.
type ring struct {
	units []Unit
	head  int
	tail  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{units: make([]Unit, capacity)}
}

// push appends u. It returns false, leaving the ring unchanged, when the
// ring is full.
func (r *ring) push(u Unit) bool {
	if r.count >= len(r.units) {
		return false
	}
	r.units[r.head] = u
	r.head = (r.head + 1) % len(r.units)
	r.count++
	return true
}

// pop removes the oldest unit.
func (r *ring) pop() (Unit, bool) {
	if r.count == 0 {
		return Unit{}, false
	}
	u := r.units[r.tail]
	r.units[r.tail] = Unit{}
	r.tail = (r.tail + 1) % len(r.units)
	r.count--
	return u, true
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) cap() int {
	return len(r.units)
}
