// Package display shows problems on the segment display and framebuffer.
package display

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"log/slog"

	"drill/drillos/proto"
	"drill/hal"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

var (
	colorBG = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff}
	colorFG = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
)

const (
	textX      = 8
	textY      = 16
	textHeight = 24
	lineHeight = 12
)

// Clock delays the caller by a number of ticks.
type Clock interface {
	Delay(ctx context.Context, ticks uint64) error
}

type Config struct {
	Segments    hal.Segments
	Framebuffer hal.Framebuffer
	LED         hal.LED
	Clock       Clock

	// Cadence is how many ticks each unit of a problem stays on the segments.
	Cadence uint64
	Log     *slog.Logger
}

// Renderer shows a problem as operand1, operator, operand2 on the segment
// display, one unit per cadence, then blanks it. The problem is also written
// as a text line into the framebuffer.
type Renderer struct {
	cfg   Config
	d     *fbDisplay
	font  tinyfont.Fonter
	width int
}

func New(cfg Config) *Renderer {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Renderer{cfg: cfg, font: &proggy.TinySZ8pt7b}
	if cfg.Framebuffer != nil {
		r.d = &fbDisplay{fb: cfg.Framebuffer}
	}
	if cfg.Segments != nil {
		r.width = cfg.Segments.Digits()
	}
	return r
}

func (r *Renderer) Render(ctx context.Context, p proto.Problem) error {
	if r.cfg.LED != nil {
		r.cfg.LED.High()
		defer r.cfg.LED.Low()
	}

	if err := r.drawText(fmt.Sprintf("#%d  %s = ?", p.Seq, p)); err != nil {
		r.cfg.Log.Warn("framebuffer present failed", "err", err)
	}

	if r.cfg.Segments == nil {
		return nil
	}
	frames := [][]byte{
		Number(p.Operand1, r.width),
		Operator(p.Op, r.width),
		Number(p.Operand2, r.width),
	}
	for _, masks := range frames {
		if err := r.cfg.Segments.Show(masks); err != nil {
			return fmt.Errorf("display: show: %w", err)
		}
		if err := r.wait(ctx); err != nil {
			return err
		}
	}
	if err := r.cfg.Segments.Show(make([]byte, r.width)); err != nil {
		return fmt.Errorf("display: blank: %w", err)
	}
	return nil
}

// ShowError puts the error pattern on the segments and writes lines to the
// framebuffer, one per text row, until the screen is full.
func (r *Renderer) ShowError(lines ...string) error {
	if r.d != nil && len(lines) > 0 {
		w, h := r.d.Size()
		_ = r.d.FillRectangle(0, 0, w, h, colorBG)
		y := int16(textY)
		for _, line := range lines {
			if y > h {
				break
			}
			tinyfont.WriteLine(r.d, r.font, textX, y, line, colorFG)
			y += lineHeight
		}
		_ = r.d.Display()
	}
	if r.cfg.Segments == nil {
		return nil
	}
	return r.cfg.Segments.Show(Error(r.width))
}

func (r *Renderer) wait(ctx context.Context) error {
	if r.cfg.Clock == nil || r.cfg.Cadence == 0 {
		return ctx.Err()
	}
	return r.cfg.Clock.Delay(ctx, r.cfg.Cadence)
}

func (r *Renderer) drawText(s string) error {
	if r.d == nil {
		return nil
	}
	w, _ := r.d.Size()
	_ = r.d.FillRectangle(0, 0, w, textHeight, colorBG)
	tinyfont.WriteLine(r.d, r.font, textX, textY, s, colorFG)
	return r.d.Display()
}
