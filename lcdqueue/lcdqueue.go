// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdqueue drives HD44780 character LCDs through a bounded queue of
// pending writes, so that callers never wait on the slow display.
//
// Producers (any goroutine) queue commands and characters with SendCommand,
// SendData, WriteText or the display.TextDisplay methods. Each unit carries
// the time the display needs to execute it. A single consumer goroutine,
// started with Run, drains the queue one tick at a time and waits out those
// execution times between units. When the queue is empty the consumer parks
// until the next write.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
package lcdqueue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
)

// HD44780 instruction set.
const (
	cmdClearDisplay   byte = 0x01
	cmdReturnHome     byte = 0x02
	cmdEntryModeSet   byte = 0x04
	cmdDisplayControl byte = 0x08
	cmdCursorShift    byte = 0x10
	cmdFunctionSet    byte = 0x20
	cmdSetDDRAMAddr   byte = 0x80

	entryLeft  byte = 0x02
	entryShift byte = 0x01

	controlDisplayOn byte = 0x04
	controlCursorOn  byte = 0x02
	controlBlinkOn   byte = 0x01

	shiftDisplay byte = 0x08
	shiftRight   byte = 0x04

	functionTwoLine byte = 0x08

	// cmdByte prefixes a Write() that carries instructions instead of
	// characters.
	cmdByte byte = 0xfe
)

const (
	delayClear    = 2 * time.Millisecond
	delayCommand  = time.Millisecond
	delayPosition = time.Millisecond
)

// Opts holds the configuration of a Dev.
type Opts struct {
	// Display geometry.
	Rows int
	Cols int
	// Capacity is the maximum number of queued units.
	Capacity int
	// TickRate is the rate at which the consumer runs.
	TickRate physic.Frequency
	// ReadyTimeout bounds the wait for the device at initialization.
	ReadyTimeout time.Duration
	// ProbeBeforeSend probes the device before every unit. A unit sent to a
	// device that is not ready fails with ErrDeviceNotReady.
	ProbeBeforeSend bool
	// Clock overrides the tick source. Defaults to a monotonic clock at
	// TickRate.
	Clock Clock
	// Logger receives the consumer's diagnostics. Defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// DefaultOpts is a 16x2 display serviced every millisecond.
var DefaultOpts = Opts{
	Rows:         2,
	Cols:         16,
	Capacity:     40,
	TickRate:     physic.KiloHertz,
	ReadyTimeout: 20 * time.Second,
}

// Dev is a queued HD44780 display.
//
// Implements periph.io/x/conn/v3/display.TextDisplay and
// display.DisplayBacklight.
type Dev struct {
	t            Transport
	clock        Clock
	freq         physic.Frequency
	log          logrus.FieldLogger
	rows         int
	cols         int
	probe        bool
	readyTimeout time.Duration

	// mu guards the queue and the consumer state. It is never held across
	// a transport call.
	mu      sync.Mutex
	q       *ring
	sending bool
	state   TaskState
	wake    chan struct{}

	// writeMu keeps multi unit writes contiguous and guards the mode
	// registers below.
	writeMu sync.Mutex
	control byte
	entry   byte

	// Owned by the consumer. cooldownUntil is never more than cooldown
	// ticks ahead of the clock.
	cooldownUntil Tick
	cooldown      Tick
}

// New returns a display using t, queues the power-on sequence and returns
// it. The caller must start the consumer with Run for anything to reach the
// display.
//
// opts may be nil, in which case DefaultOpts is used.
func New(t Transport, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Capacity == 0 {
		o.Capacity = DefaultOpts.Capacity
	}
	if o.TickRate == 0 {
		o.TickRate = DefaultOpts.TickRate
	}
	if o.Rows < 1 || o.Rows > 4 || o.Cols < 1 || o.Cols > 40 || (o.Rows > 2 && o.Cols > 20) {
		return nil, fmt.Errorf("%s: unsupported geometry %dx%d", packageName, o.Cols, o.Rows)
	}
	if o.Capacity < 0 {
		return nil, fmt.Errorf("%s: invalid capacity %d", packageName, o.Capacity)
	}
	if o.Clock == nil {
		o.Clock = NewMonotonicClock(o.TickRate)
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	dev := &Dev{
		t:            t,
		clock:        o.Clock,
		freq:         o.Clock.Frequency(),
		log:          o.Logger.WithField("device", packageName),
		rows:         o.Rows,
		cols:         o.Cols,
		probe:        o.ProbeBeforeSend,
		readyTimeout: o.ReadyTimeout,
		q:            newRing(o.Capacity),
		state:        TaskRunnable,
		wake:         make(chan struct{}, 1),
		control:      controlDisplayOn,
		entry:        entryLeft,
	}
	dev.cooldownUntil = dev.clock.Now()
	if err := dev.init(); err != nil {
		return nil, err
	}
	return dev, nil
}

// init waits for the device and queues the 4 bit power-on sequence.
func (dev *Dev) init() error {
	if err := dev.waitReady(); err != nil {
		return err
	}
	function := cmdFunctionSet
	if dev.rows > 1 {
		function |= functionTwoLine
	}
	seq := []struct {
		u     Unit
		delay time.Duration
	}{
		{Unit{Payload: 0x03, Mode: ModeNibble}, 5 * time.Millisecond},
		{Unit{Payload: 0x03, Mode: ModeNibble}, 1 * time.Millisecond},
		{Unit{Payload: 0x03, Mode: ModeNibble}, 10 * time.Millisecond},
		{Unit{Payload: 0x02, Mode: ModeNibble}, 10 * time.Millisecond},
		{Unit{Payload: function}, delayCommand},
		{Unit{Payload: cmdDisplayControl}, delayCommand},
		{Unit{Payload: cmdClearDisplay}, delayClear},
		{Unit{Payload: cmdEntryModeSet | dev.entry}, delayCommand},
		{Unit{Payload: cmdDisplayControl | dev.control}, 0},
	}
	for _, s := range seq {
		s.u.ExecTicks = ticks(s.delay, dev.freq)
		if err := dev.enqueue(s.u); err != nil {
			return err
		}
	}
	return nil
}

// waitReady probes the device until it answers or the ready timeout expires.
func (dev *Dev) waitReady() error {
	deadline := time.Now().Add(dev.readyTimeout)
	for {
		if dev.t.Ready() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %w", ErrTimeout, ErrDeviceNotReady)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// SendCommand queues an instruction. exec is the time the display needs to
// execute it, rounded up to whole ticks.
//
// Returns ErrBufferFull when the queue is at capacity.
func (dev *Dev) SendCommand(cmd byte, exec time.Duration) error {
	return dev.enqueue(Unit{Payload: cmd, Mode: ModeCommand, ExecTicks: ticks(exec, dev.freq)})
}

// SendData queues a character.
//
// Returns ErrBufferFull when the queue is at capacity.
func (dev *Dev) SendData(data byte) error {
	return dev.enqueue(Unit{Payload: data, Mode: ModeData})
}

func (dev *Dev) enqueue(u Unit) error {
	dev.mu.Lock()
	if !dev.q.push(u) {
		dev.mu.Unlock()
		return ErrBufferFull
	}
	resume := dev.state == TaskSuspended
	if resume {
		dev.state = TaskRunnable
	}
	dev.mu.Unlock()
	if resume {
		select {
		case dev.wake <- struct{}{}:
		default:
		}
		dev.log.Debug("consumer resumed")
	}
	return nil
}

// WriteText queues text at line and col, both counted from 0. When clearLine
// is set the whole line is blanked first.
//
// On ErrBufferFull the units queued so far are not withdrawn.
func (dev *Dev) WriteText(line, col int, text string, clearLine bool) error {
	pos, err := dev.address(line, col)
	if err != nil {
		return err
	}
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	if clearLine {
		if err := dev.SendCommand(cmdSetDDRAMAddr|rowStart(line, dev.cols), delayPosition); err != nil {
			return err
		}
		for range dev.cols {
			if err := dev.SendData(' '); err != nil {
				return err
			}
		}
	}
	if err := dev.SendCommand(cmdSetDDRAMAddr|pos, delayPosition); err != nil {
		return err
	}
	for i := 0; i < len(text); i++ {
		if err := dev.SendData(text[i]); err != nil {
			return err
		}
	}
	return nil
}

// rowStart returns the DDRAM address of the first character of line. Lines
// 2 and 3 continue lines 0 and 1 in memory.
func rowStart(line, cols int) byte {
	switch line {
	case 1:
		return 0x40
	case 2:
		return byte(cols)
	case 3:
		return 0x40 + byte(cols)
	default:
		return 0
	}
}

func (dev *Dev) address(line, col int) (byte, error) {
	if line < 0 || line >= dev.rows || col < 0 || col >= dev.cols {
		return 0, fmt.Errorf("%w: line %d, column %d on a %dx%d display", ErrInvalidPosition, line, col, dev.cols, dev.rows)
	}
	return rowStart(line, dev.cols) + byte(col), nil
}

// AutoScroll shifts the display instead of the cursor on every character
// when enabled.
func (dev *Dev) AutoScroll(enabled bool) error {
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	if enabled {
		dev.entry |= entryShift
	} else {
		dev.entry &^= entryShift
	}
	return dev.SendCommand(cmdEntryModeSet|dev.entry, 0)
}

// LeftToRight makes text flow left to right from the cursor.
func (dev *Dev) LeftToRight() error {
	return dev.setEntry(entryLeft, true)
}

// RightToLeft makes text flow right to left from the cursor.
func (dev *Dev) RightToLeft() error {
	return dev.setEntry(entryLeft, false)
}

func (dev *Dev) setEntry(flag byte, set bool) error {
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	if set {
		dev.entry |= flag
	} else {
		dev.entry &^= flag
	}
	return dev.SendCommand(cmdEntryModeSet|dev.entry, 0)
}

// Clear clears the screen and moves the cursor to the first position.
func (dev *Dev) Clear() error {
	return dev.SendCommand(cmdClearDisplay, delayClear)
}

// Home moves the cursor to the first position and undoes any scrolling.
func (dev *Dev) Home() error {
	return dev.SendCommand(cmdReturnHome, delayClear)
}

// Cols returns the number of columns.
func (dev *Dev) Cols() int {
	return dev.cols
}

// Rows returns the number of rows.
func (dev *Dev) Rows() int {
	return dev.rows
}

// MinCol returns the first column for MoveTo.
func (dev *Dev) MinCol() int {
	return 1
}

// MinRow returns the first row for MoveTo.
func (dev *Dev) MinRow() int {
	return 1
}

// Cursor sets the cursor mode. You can pass multiple arguments.
// Cursor(CursorOff, CursorUnderline)
func (dev *Dev) Cursor(modes ...display.CursorMode) error {
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	control := dev.control
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			control &^= controlCursorOn | controlBlinkOn
		case display.CursorUnderline:
			control |= controlCursorOn
		case display.CursorBlink, display.CursorBlock:
			control |= controlBlinkOn
		default:
			return fmt.Errorf("%s: unexpected cursor: %d", packageName, mode)
		}
	}
	dev.control = control
	return dev.SendCommand(cmdDisplayControl|dev.control, 0)
}

// Display turns the display on or off. The contents are preserved.
func (dev *Dev) Display(on bool) error {
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	if on {
		dev.control |= controlDisplayOn
	} else {
		dev.control &^= controlDisplayOn
	}
	return dev.SendCommand(cmdDisplayControl|dev.control, 0)
}

// Move moves the cursor forward or backward.
func (dev *Dev) Move(dir display.CursorDirection) error {
	val := cmdCursorShift
	switch dir {
	case display.Backward:
	case display.Forward:
		val |= shiftRight
	default:
		return fmt.Errorf("%s: %w", packageName, display.ErrNotImplemented)
	}
	return dev.SendCommand(val, 0)
}

// ScrollLeft shifts the whole display left without changing its contents.
func (dev *Dev) ScrollLeft() error {
	return dev.SendCommand(cmdCursorShift|shiftDisplay, 0)
}

// ScrollRight shifts the whole display right without changing its contents.
func (dev *Dev) ScrollRight() error {
	return dev.SendCommand(cmdCursorShift|shiftDisplay|shiftRight, 0)
}

// MoveTo moves the cursor to row, col, both counted from 1.
func (dev *Dev) MoveTo(row, col int) error {
	pos, err := dev.address(row-dev.MinRow(), col-dev.MinCol())
	if err != nil {
		return err
	}
	return dev.SendCommand(cmdSetDDRAMAddr|pos, delayPosition)
}

// Write queues p as characters at the cursor. If p starts with 0xfe, the
// remaining bytes are queued as instructions instead.
func (dev *Dev) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	dev.writeMu.Lock()
	defer dev.writeMu.Unlock()
	if p[0] == cmdByte {
		for _, c := range p[1:] {
			delay := delayCommand
			if c == cmdClearDisplay || c&^0x01 == cmdReturnHome {
				delay = delayClear
			}
			if err = dev.SendCommand(c, delay); err != nil {
				return
			}
			n++
		}
		return
	}
	for _, c := range p {
		if err = dev.SendData(c); err != nil {
			return
		}
		n++
	}
	return
}

// WriteString queues text at the cursor.
func (dev *Dev) WriteString(text string) (int, error) {
	return dev.Write([]byte(text))
}

// Backlight turns the backlight on or off, if the transport controls one.
func (dev *Dev) Backlight(intensity display.Intensity) error {
	bl, ok := dev.t.(interface{ SetBacklight(on bool) error })
	if !ok {
		return fmt.Errorf("%s: %w", packageName, display.ErrNotImplemented)
	}
	return wrap(bl.SetBacklight(intensity > 0))
}

// Halt queues a clear and turns the display and backlight off. Use Drain to
// wait for the consumer to send it.
func (dev *Dev) Halt() error {
	if err := dev.Clear(); err != nil {
		return err
	}
	if err := dev.Display(false); err != nil {
		return err
	}
	if err := dev.Backlight(0); err != nil && !errors.Is(err, display.ErrNotImplemented) {
		return err
	}
	return nil
}

// Len returns the number of queued units.
func (dev *Dev) Len() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.q.len()
}

// Cap returns the queue capacity.
func (dev *Dev) Cap() int {
	return dev.q.cap()
}

func (dev *Dev) String() string {
	return fmt.Sprintf("lcdqueue{%v, Rows: %d, Cols: %d, Queued: %d/%d}", dev.t, dev.rows, dev.cols, dev.Len(), dev.Cap())
}

var _ display.TextDisplay = &Dev{}
var _ display.DisplayBacklight = &Dev{}
var _ conn.Resource = &Dev{}
