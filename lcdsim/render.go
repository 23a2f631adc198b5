// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/maruel/ansi256"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

var (
	panelLit   = color.NRGBA{R: 0x5a, G: 0xc8, B: 0x3c, A: 0xff}
	panelDark  = color.NRGBA{R: 0x1e, G: 0x3c, B: 0x14, A: 0xff}
	bezel      = color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	cellLit    = color.NRGBA{R: 0x68, G: 0xd4, B: 0x4c, A: 0xff}
	cellDark   = color.NRGBA{R: 0x26, G: 0x46, B: 0x1c, A: 0xff}
	glyphColor = color.NRGBA{R: 0x10, G: 0x20, B: 0x10, A: 0xff}
)

// Render draws the display to w using ANSI color codes: a frame of colored
// blocks, lit when the backlight is on, around the visible text.
func (s *Sim) Render(w io.Writer) error {
	return s.RenderPalette(w, ansi256.Default)
}

// RenderPalette is Render with a specific palette.
func (s *Sim) RenderPalette(w io.Writer, p *ansi256.Palette) error {
	lines := s.Lines()
	frame := panelDark
	if s.Backlight() {
		frame = panelLit
	}
	block := p.Block(frame)
	var buf bytes.Buffer
	border := func() {
		for range s.cols + 2 {
			_, _ = buf.WriteString(block)
		}
		_, _ = buf.WriteString("\033[0m\n")
	}
	border()
	for _, line := range lines {
		_, _ = buf.WriteString(block)
		_, _ = buf.WriteString("\033[0m ")
		for i := 0; i < len(line); i++ {
			_ = buf.WriteByte(printable(line[i]))
			_ = buf.WriteByte(' ')
		}
		_, _ = buf.WriteString(block)
		_, _ = buf.WriteString("\033[0m\n")
	}
	border()
	_, err := buf.WriteTo(w)
	return err
}

// printable maps the character ROM codes that have no ASCII equivalent.
func printable(c byte) byte {
	if c < 0x20 || c > 0x7e {
		return '?'
	}
	return c
}

const (
	cellW   = 12
	cellH   = 18
	cellGap = 2
	margin  = 12
)

var (
	faceOnce sync.Once
	face     font.Face
	faceErr  error
)

func glyphFace() (font.Face, error) {
	faceOnce.Do(func() {
		f, err := truetype.Parse(gomono.TTF)
		if err != nil {
			faceErr = err
			return
		}
		face = truetype.NewFace(f, &truetype.Options{Size: 16, DPI: 72})
	})
	return face, faceErr
}

// Image draws the display as it would look on the desk.
func (s *Sim) Image() (image.Image, error) {
	dc, err := s.draw()
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// SavePNG writes Image to path.
func (s *Sim) SavePNG(path string) error {
	dc, err := s.draw()
	if err != nil {
		return err
	}
	return dc.SavePNG(path)
}

func (s *Sim) draw() (*gg.Context, error) {
	ff, err := glyphFace()
	if err != nil {
		return nil, err
	}
	lines := s.Lines()
	lit := s.Backlight()
	w := 2*margin + s.cols*(cellW+cellGap) - cellGap
	h := 2*margin + s.rows*(cellH+cellGap) - cellGap
	dc := gg.NewContext(w+2*margin, h+2*margin)
	dc.SetColor(bezel)
	dc.Clear()
	panel, cell := panelDark, cellDark
	if lit {
		panel, cell = panelLit, cellLit
	}
	dc.SetColor(panel)
	dc.DrawRoundedRectangle(margin, margin, float64(w), float64(h), 6)
	dc.Fill()
	dc.SetFontFace(ff)
	for row, line := range lines {
		y := float64(2*margin + row*(cellH+cellGap))
		for col := 0; col < len(line); col++ {
			x := float64(2*margin + col*(cellW+cellGap))
			dc.SetColor(cell)
			dc.DrawRectangle(x, y, cellW, cellH)
			dc.Fill()
			if c := line[col]; c != ' ' {
				dc.SetColor(glyphColor)
				dc.DrawStringAnchored(string(printable(c)), x+cellW/2, y+cellH/2, 0.5, 0.35)
			}
		}
	}
	return dc, nil
}
