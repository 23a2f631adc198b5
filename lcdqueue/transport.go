// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdqueue

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// Bit positions of the LCD lines on the common PCF8574 backpack. The encoded
// sequences handed to a Transport use this layout, without the backlight bit.
const (
	bitRS        byte = 0x01
	bitRW        byte = 0x02
	bitEnable    byte = 0x04
	bitBacklight byte = 0x08

	// DefaultAddress is the I²C address of most PCF8574 LCD backpacks.
	DefaultAddress uint16 = 0x27
)

// Transport moves encoded sequences to the display. Each byte of a sequence
// is one state of the D7-D4 (bits 7-4), E (bit 2) and RS (bit 0) lines.
type Transport interface {
	// Tx clocks seq out to the display. It blocks until done.
	Tx(seq []byte) error
	// Ready probes the device.
	Ready() bool
}

// encode returns the electrical sequence for u: the high nibble with E
// raised then lowered, followed by the low nibble the same way.
func encode(u Unit) []byte {
	var rs byte
	if u.Mode == ModeData {
		rs = bitRS
	}
	if u.Mode == ModeNibble {
		n := u.Payload << 4
		return []byte{n | bitEnable, n}
	}
	hi := u.Payload & 0xf0
	lo := u.Payload << 4
	return []byte{
		hi | bitEnable | rs,
		hi | rs,
		lo | bitEnable | rs,
		lo | rs,
	}
}

// I2CBackpack is a Transport for HD44780 displays behind a PCF8574 I²C
// backpack. The whole sequence goes out in one I²C write.
//
// # Product Information
//
// https://www.handsontec.com/dataspecs/I2C_2004_LCD.pdf
type I2CBackpack struct {
	mu        sync.Mutex
	d         *i2c.Dev
	backlight byte
	buf       []byte
}

// NewI2CBackpack returns a transport for the backpack at address on bus. The
// backlight starts on.
func NewI2CBackpack(bus i2c.Bus, address uint16) *I2CBackpack {
	return &I2CBackpack{
		d:         &i2c.Dev{Bus: bus, Addr: address},
		backlight: bitBacklight,
		buf:       make([]byte, 0, 4),
	}
}

// Tx implements Transport.
func (b *I2CBackpack) Tx(seq []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
	for _, v := range seq {
		// R/W is connected on this backpack and must stay low.
		b.buf = append(b.buf, (v&^bitRW)|b.backlight)
	}
	return b.d.Tx(b.buf, nil)
}

// Ready implements Transport. It reads back the expander port.
func (b *I2CBackpack) Ready() bool {
	var r [1]byte
	return b.d.Tx(nil, r[:]) == nil
}

// SetBacklight turns the backlight on or off. The new state is written
// immediately and carried by every following sequence.
func (b *I2CBackpack) SetBacklight(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backlight = 0
	if on {
		b.backlight = bitBacklight
	}
	return b.d.Tx([]byte{b.backlight}, nil)
}

func (b *I2CBackpack) String() string {
	return fmt.Sprintf("I2CBackpack{%s}", b.d)
}

// DataPins drives the D4-D7 lines. A gpio.Group whose first four pins are
// D4-D7 satisfies it.
type DataPins interface {
	Out(value, mask gpio.GPIOValue) error
}

// ControlPin drives a single control line. Any gpio.PinOut satisfies it.
type ControlPin interface {
	Out(l gpio.Level) error
}

// GroupTransport is a Transport for displays wired directly to GPIO lines in
// 4 bit mode.
type GroupTransport struct {
	mu     sync.Mutex
	data   DataPins
	rs     ControlPin
	enable ControlPin
}

// NewGroupTransport returns a transport using data for D4-D7, and the rs and
// enable pins.
func NewGroupTransport(data DataPins, rs, enable ControlPin) *GroupTransport {
	return &GroupTransport{data: data, rs: rs, enable: enable}
}

// Tx implements Transport.
func (g *GroupTransport) Tx(seq []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, v := range seq {
		if err := g.rs.Out(gpio.Level(v&bitRS != 0)); err != nil {
			return err
		}
		if err := g.data.Out(gpio.GPIOValue(v>>4), 0x0f); err != nil {
			return err
		}
		high := v&bitEnable != 0
		if err := g.enable.Out(gpio.Level(high)); err != nil {
			return err
		}
		if high {
			time.Sleep(2 * time.Microsecond)
		}
	}
	return nil
}

// Ready implements Transport. GPIO wiring has no way to probe the device.
func (g *GroupTransport) Ready() bool {
	return true
}

var _ Transport = &I2CBackpack{}
var _ Transport = &GroupTransport{}
