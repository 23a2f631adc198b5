// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testAddr = 0x27

func nibble(t *testing.T, s *Sim, n byte) {
	t.Helper()
	if err := s.Tx(testAddr, []byte{n<<4 | pinEnable | pinBacklight, n<<4 | pinBacklight}, nil); err != nil {
		t.Fatal(err)
	}
}

func send(t *testing.T, s *Sim, b byte, data bool) {
	t.Helper()
	rs := pinBacklight
	if data {
		rs |= pinRS
	}
	hi, lo := b&0xf0, b<<4
	if err := s.Tx(testAddr, []byte{hi | pinEnable | rs, hi | rs, lo | pinEnable | rs, lo | rs}, nil); err != nil {
		t.Fatal(err)
	}
}

func text(t *testing.T, s *Sim, str string) {
	t.Helper()
	for i := 0; i < len(str); i++ {
		send(t, s, str[i], true)
	}
}

// powerUp runs the 4 bit initialization of the datasheet.
func powerUp(t *testing.T, rows, cols int) *Sim {
	t.Helper()
	s := New(testAddr, rows, cols)
	nibble(t, s, 0x3)
	nibble(t, s, 0x3)
	nibble(t, s, 0x3)
	nibble(t, s, 0x2)
	function := byte(0x20)
	if rows > 1 {
		function |= 0x08
	}
	send(t, s, function, false)
	send(t, s, 0x08, false)
	send(t, s, 0x01, false)
	send(t, s, 0x06, false)
	send(t, s, 0x0c, false)
	return s
}

func TestPowerUp(t *testing.T) {
	s := New(testAddr, 2, 16)
	if s.FourBit() || s.DisplayOn() {
		t.Error("unexpected state after reset")
	}
	s = powerUp(t, 2, 16)
	if !s.FourBit() || !s.TwoLine() || !s.DisplayOn() || !s.Backlight() {
		t.Errorf("not initialized: %s", s)
	}
	instructions, characters := s.Counts()
	if instructions != 9 || characters != 0 {
		t.Errorf("expected 9 instructions and no characters, received %d and %d", instructions, characters)
	}
	if len(s.String()) == 0 {
		t.Error("String()")
	}
}

func TestWriteLines(t *testing.T) {
	s := powerUp(t, 4, 20)
	text(t, s, "line 0")
	send(t, s, 0x80|0x40, false)
	text(t, s, "line 1")
	send(t, s, 0x80|0x14, false)
	text(t, s, "line 2")
	send(t, s, 0x80|(0x54+2), false)
	text(t, s, "line 3")
	want := []string{
		"line 0              ",
		"line 1              ",
		"line 2              ",
		"  line 3            ",
	}
	if diff := cmp.Diff(want, s.Lines()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAddressWrap(t *testing.T) {
	s := powerUp(t, 2, 16)
	send(t, s, 0x80|0x27, false)
	text(t, s, "ab")
	if s.DDRAM(0x27) != 'a' || s.DDRAM(0x40) != 'b' {
		t.Errorf("expected wrap into the second line")
	}
	send(t, s, 0x80|0x67, false)
	text(t, s, "cd")
	if s.DDRAM(0x67) != 'c' || s.DDRAM(0x00) != 'd' {
		t.Errorf("expected wrap into the first line")
	}
	if s.Address() != 0x01 {
		t.Errorf("address counter %#x, expected 0x01", s.Address())
	}
}

func TestAddressOutsideLines(t *testing.T) {
	s := powerUp(t, 2, 16)
	send(t, s, 0xff, false)
	text(t, s, "ab")
	if s.DDRAM(0x7f) != 'a' || s.DDRAM(0x00) != 'b' || s.Address() != 0x01 {
		t.Errorf("past the second line: 0x7f=%q 0x00=%q address=%#x", s.DDRAM(0x7f), s.DDRAM(0x00), s.Address())
	}
	send(t, s, 0x80|0x30, false)
	text(t, s, "cd")
	if s.DDRAM(0x30) != 'c' || s.DDRAM(0x40) != 'd' || s.Address() != 0x41 {
		t.Errorf("between the lines: 0x30=%q 0x40=%q address=%#x", s.DDRAM(0x30), s.DDRAM(0x40), s.Address())
	}
	send(t, s, 0x04, false) // decrement
	send(t, s, 0x80|0x30, false)
	text(t, s, "e")
	if s.Address() != 0x27 {
		t.Errorf("decrement between the lines: address=%#x, expected 0x27", s.Address())
	}
	send(t, s, 0xf0, false)
	text(t, s, "f")
	if s.DDRAM(0x70) != 'f' || s.Address() != 0x67 {
		t.Errorf("decrement past the second line: 0x70=%q address=%#x", s.DDRAM(0x70), s.Address())
	}
}

func TestShiftAndControl(t *testing.T) {
	s := powerUp(t, 2, 16)
	text(t, s, "abc")
	send(t, s, 0x18, false) // shift display left
	if got := s.Lines()[0]; !strings.HasPrefix(got, "bc ") {
		t.Errorf("after left shift %q", got)
	}
	send(t, s, 0x1c, false) // and back
	send(t, s, 0x1c, false)
	if got := s.Lines()[0]; !strings.HasPrefix(got, " abc") {
		t.Errorf("after right shift %q", got)
	}
	send(t, s, 0x02, false)
	if got := s.Lines()[0]; !strings.HasPrefix(got, "abc") {
		t.Errorf("after home %q", got)
	}
	send(t, s, 0x0f, false)
	if c, b := s.Cursor(); !c || !b {
		t.Error("expected cursor and blink on")
	}
	send(t, s, 0x08, false)
	if got := s.Lines()[0]; strings.TrimSpace(got) != "" {
		t.Errorf("display off shows %q", got)
	}
	send(t, s, 0x0c, false)
	send(t, s, 0x01, false)
	if got := s.Lines()[0]; strings.TrimSpace(got) != "" {
		t.Errorf("after clear %q", got)
	}
}

func TestEntryMode(t *testing.T) {
	s := powerUp(t, 2, 16)
	send(t, s, 0x80|0x05, false)
	send(t, s, 0x04, false) // decrement
	text(t, s, "abc")
	if got := s.Lines()[0][:6]; got != "   cba" {
		t.Errorf("right to left %q", got)
	}
	send(t, s, 0x14, false) // cursor right
	if s.Address() != 0x03 {
		t.Errorf("address counter %#x, expected 0x03", s.Address())
	}
}

func TestCGRAM(t *testing.T) {
	s := powerUp(t, 2, 16)
	send(t, s, 0x40, false)
	send(t, s, 0x1f, true)
	send(t, s, 0x80, false)
	text(t, s, "x")
	if s.DDRAM(0) != 'x' {
		t.Error("DDRAM write after CGRAM write")
	}
	if s.cgram[0] != 0x1f {
		t.Errorf("cgram[0]=%#x", s.cgram[0])
	}
}

func TestBusErrors(t *testing.T) {
	s := New(testAddr, 2, 16)
	if err := s.Tx(0x20, []byte{0}, nil); !errors.Is(err, ErrNoAck) {
		t.Errorf("wrong address: %v", err)
	}
	s.SetAbsent(true)
	if err := s.Tx(testAddr, []byte{0}, nil); !errors.Is(err, ErrNoAck) {
		t.Errorf("absent: %v", err)
	}
	s.SetAbsent(false)
	fail := errors.New("arbitration lost")
	s.SetFail(fail)
	if err := s.Tx(testAddr, nil, make([]byte, 1)); !errors.Is(err, fail) {
		t.Errorf("fail: %v", err)
	}
	s.SetFail(nil)
	r := make([]byte, 1)
	_ = s.Tx(testAddr, []byte{0x08}, nil)
	if err := s.Tx(testAddr, nil, r); err != nil || r[0] != 0x08 {
		t.Errorf("read back %#x, %v", r[0], err)
	}
	if err := s.SetSpeed(0); err != nil {
		t.Error(err)
	}
}

func TestRender(t *testing.T) {
	s := powerUp(t, 2, 16)
	text(t, s, "Hi")
	var buf bytes.Buffer
	if err := s.Render(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "H i ") {
		t.Errorf("render is missing the text:\n%s", out)
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("expected 4 rendered lines, found %d", n)
	}
}

func TestImage(t *testing.T) {
	s := powerUp(t, 2, 16)
	text(t, s, "Hi")
	img, err := s.Image()
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() <= 16*cellW || b.Dy() <= 2*cellH {
		t.Errorf("image too small: %v", b)
	}
	path := filepath.Join(t.TempDir(), "lcd.png")
	if err := s.SavePNG(path); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("png not written: %v", err)
	}
}
