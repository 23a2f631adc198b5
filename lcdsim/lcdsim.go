// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdsim emulates an HD44780 character LCD sitting behind a PCF8574
// I²C backpack.
//
// Sim implements i2c.Bus, so any driver talking to a backpack can be pointed
// at it. It decodes the pin states written to the expander, executes the
// instructions latched on each falling edge of E and keeps the display RAM,
// which can then be inspected with Lines or drawn to the terminal or to an
// image.
//
// Useful while you are waiting for your LCD to come by mail.
package lcdsim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Backpack pin layout.
const (
	pinRS        byte = 0x01
	pinEnable    byte = 0x04
	pinBacklight byte = 0x08
)

const (
	lineLen    = 40
	ddramSize  = 0x80
	cgramSize  = 0x40
	secondLine = 0x40
)

// ErrNoAck is returned for transactions the emulated device does not
// acknowledge.
var ErrNoAck = errors.New("lcdsim: no acknowledge")

// Sim is an emulated display. The zero value is not usable, use New.
type Sim struct {
	mu     sync.Mutex
	addr   uint16
	rows   int
	cols   int
	fail   error
	absent bool

	pins     byte
	eightBit bool
	pending  byte
	half     bool

	twoLine   bool
	ddram     [ddramSize]byte
	cgram     [cgramSize]byte
	ac        byte
	cgMode    bool
	increment bool
	autoShift bool
	displayOn bool
	cursorOn  bool
	blinkOn   bool
	shift     int

	instructions int
	characters   int
}

// New returns a powered up display of rows x cols answering at address.
func New(address uint16, rows, cols int) *Sim {
	s := &Sim{addr: address, rows: rows, cols: cols}
	s.reset()
	return s
}

// reset applies the state the controller has after power on.
func (s *Sim) reset() {
	s.eightBit = true
	s.half = false
	s.twoLine = false
	s.increment = true
	s.autoShift = false
	s.displayOn = false
	s.cursorOn = false
	s.blinkOn = false
	s.shift = 0
	s.ac = 0
	s.cgMode = false
	for i := range s.ddram {
		s.ddram[i] = ' '
	}
}

func (s *Sim) String() string {
	return fmt.Sprintf("lcdsim(%#x, %dx%d)", s.addr, s.cols, s.rows)
}

// Tx implements i2c.Bus.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != s.addr || s.absent {
		return ErrNoAck
	}
	if s.fail != nil {
		return s.fail
	}
	for _, b := range w {
		s.write(b)
	}
	for i := range r {
		r[i] = s.pins
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (s *Sim) SetSpeed(f physic.Frequency) error {
	return nil
}

// SetFail makes every following transaction fail with err. Pass nil to
// recover.
func (s *Sim) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetAbsent makes the device stop acknowledging its address.
func (s *Sim) SetAbsent(absent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absent = absent
}

// write applies a new state of the expander pins. The controller latches the
// data lines when E goes low.
func (s *Sim) write(b byte) {
	prev := s.pins
	s.pins = b
	if prev&pinEnable != 0 && b&pinEnable == 0 {
		s.latch(prev)
	}
}

func (s *Sim) latch(v byte) {
	nibble := v >> 4
	rs := v&pinRS != 0
	if s.eightBit {
		// D3-D0 are not wired on the backpack and read as 0.
		s.exec(nibble<<4, rs)
		return
	}
	if !s.half {
		s.pending = nibble
		s.half = true
		return
	}
	s.half = false
	s.exec(s.pending<<4|nibble, rs)
}

func (s *Sim) exec(b byte, rs bool) {
	if rs {
		s.characters++
		s.data(b)
		return
	}
	s.instructions++
	switch {
	case b&0x80 != 0:
		s.ac = b & 0x7f
		s.cgMode = false
	case b&0x40 != 0:
		s.ac = b & 0x3f
		s.cgMode = true
	case b&0x20 != 0:
		s.eightBit = b&0x10 != 0
		s.twoLine = b&0x08 != 0
		s.half = false
	case b&0x10 != 0:
		right := b&0x04 != 0
		if b&0x08 != 0 {
			if right {
				s.shift--
			} else {
				s.shift++
			}
		} else {
			s.ac = s.step(s.ac, right)
		}
	case b&0x08 != 0:
		s.displayOn = b&0x04 != 0
		s.cursorOn = b&0x02 != 0
		s.blinkOn = b&0x01 != 0
	case b&0x04 != 0:
		s.increment = b&0x02 != 0
		s.autoShift = b&0x01 != 0
	case b&0x02 != 0:
		s.ac = 0
		s.shift = 0
		s.cgMode = false
	case b&0x01 != 0:
		for i := range s.ddram {
			s.ddram[i] = ' '
		}
		s.ac = 0
		s.shift = 0
		s.increment = true
		s.cgMode = false
	}
}

func (s *Sim) data(b byte) {
	if s.cgMode {
		s.cgram[s.ac&(cgramSize-1)] = b
		s.ac = (s.ac + 1) & (cgramSize - 1)
		return
	}
	s.ddram[s.ac&(ddramSize-1)] = b
	s.ac = s.step(s.ac, s.increment)
	if s.autoShift {
		if s.increment {
			s.shift++
		} else {
			s.shift--
		}
	}
}

// step moves a DDRAM address by one. In 2 line mode the two lines are
// 0x00-0x27 and 0x40-0x67, and the address runs from the end of one into
// the other. Addresses outside of both lines fall back into the nearest one.
func (s *Sim) step(addr byte, forward bool) byte {
	if !s.twoLine {
		if forward {
			return (addr + 1) % (2 * lineLen)
		}
		return (addr + 2*lineLen - 1) % (2 * lineLen)
	}
	if forward {
		switch {
		case addr >= secondLine+lineLen-1:
			return 0
		case addr >= lineLen-1 && addr < secondLine:
			return secondLine
		}
		return addr + 1
	}
	switch {
	case addr == 0 || addr >= secondLine+lineLen:
		return secondLine + lineLen - 1
	case addr >= lineLen && addr <= secondLine:
		return lineLen - 1
	}
	return addr - 1
}

// Lines returns the visible characters, one string per row. A display that
// is turned off shows only blanks.
func (s *Sim) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, s.rows)
	for row := range s.rows {
		var sb strings.Builder
		for col := range s.cols {
			c := byte(' ')
			if s.displayOn {
				c = s.ddram[s.visible(row, col)]
			}
			sb.WriteByte(c)
		}
		out[row] = sb.String()
	}
	return out
}

// visible returns the DDRAM address shown at row, col.
func (s *Sim) visible(row, col int) int {
	var start int
	switch row {
	case 1:
		start = secondLine
	case 2:
		start = s.cols
	case 3:
		start = secondLine + s.cols
	}
	if !s.twoLine {
		return mod(start+col+s.shift, 2*lineLen)
	}
	base := start & secondLine
	return base + mod(start-base+col+s.shift, lineLen)
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// DDRAM returns the character stored at address.
func (s *Sim) DDRAM(address byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ddram[address&(ddramSize-1)]
}

// Address returns the address counter.
func (s *Sim) Address() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ac
}

// DisplayOn reports whether the display is turned on.
func (s *Sim) DisplayOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayOn
}

// Cursor reports the cursor and blink states.
func (s *Sim) Cursor() (cursor, blink bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorOn, s.blinkOn
}

// FourBit reports whether the controller was switched to 4 bit mode.
func (s *Sim) FourBit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.eightBit
}

// TwoLine reports whether the controller was set to 2 line mode.
func (s *Sim) TwoLine() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.twoLine
}

// Backlight reports the state of the backlight line.
func (s *Sim) Backlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins&pinBacklight != 0
}

// Counts returns the number of instructions and characters executed.
func (s *Sim) Counts() (instructions, characters int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instructions, s.characters
}

var _ i2c.Bus = &Sim{}
