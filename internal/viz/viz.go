// Package viz rasterizes per-channel oscilloscope lanes into RGBA frames
// for the encoder.
package viz

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/thelolagemann/go-nsf/internal/apu"
)

// triggerLookback bounds the search for a waveform edge when aligning a
// lane window, in samples.
const triggerLookback = 4096

// Renderer draws one frame per call into a reused RGBA buffer.
type Renderer struct {
	width, height int

	channels []apu.Channel
	hidden   map[apu.ChannelID]bool

	canvas *image.RGBA
}

func New(width, height int, channels []apu.Channel) *Renderer {
	return &Renderer{
		width:    width,
		height:   height,
		channels: channels,
		hidden:   make(map[apu.ChannelID]bool),
		canvas:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// ApplySettings hides lanes by channel identity.
func (r *Renderer) ApplySettings(settings map[apu.ChannelID]apu.ChannelSettings) {
	for id, s := range settings {
		r.hidden[id] = s.Hidden
	}
}

func (r *Renderer) visible() []apu.Channel {
	var out []apu.Channel
	for _, c := range r.channels {
		if !r.hidden[apu.ChannelID{Chip: c.Chip(), Name: c.Name()}] {
			out = append(out, c)
		}
	}
	return out
}

// Draw renders the current ring-buffer contents over the backdrop (nil
// for black) and returns the RGBA frame. The returned slice is reused by
// the next call.
func (r *Renderer) Draw(backdrop []byte) []byte {
	if backdrop != nil && len(backdrop) == len(r.canvas.Pix) {
		copy(r.canvas.Pix, backdrop)
	} else {
		for i := range r.canvas.Pix {
			if i%4 == 3 {
				r.canvas.Pix[i] = 0xFF
			} else {
				r.canvas.Pix[i] = 0
			}
		}
	}

	channels := r.visible()
	if len(channels) == 0 {
		return r.canvas.Pix
	}

	laneHeight := r.height / len(channels)
	for i, c := range channels {
		r.drawLane(c, i*laneHeight, laneHeight)
	}
	return r.canvas.Pix
}

func (r *Renderer) drawLane(c apu.Channel, top, height int) {
	col := channelColor(c)

	samples := c.SampleBuffer()
	start := r.triggerPoint(c)

	minS, maxS := int(c.MinSample()), int(c.MaxSample())
	span := maxS - minS
	if span == 0 {
		span = 1
	}

	// center line
	mid := top + height/2
	for x := 0; x < r.width; x++ {
		r.blend(x, mid, col, 40)
	}

	prevY := mid
	for x := 0; x < r.width; x++ {
		s := int(samples.At(start + x))
		// map [min, max] to the lane, inverted so positive goes up
		y := top + height - 1 - (s-minS)*(height-1)/span
		if y < top {
			y = top
		} else if y >= top+height {
			y = top + height - 1
		}

		r.vline(x, prevY, y, col)
		prevY = y
	}

	r.caption(captionText(c), 4, top+12, col)
}

// triggerPoint picks the window start so consecutive frames of a steady
// waveform render at a stable phase: the most recent edge marker that
// leaves a full window before the write cursor.
func (r *Renderer) triggerPoint(c apu.Channel) int {
	edges := c.EdgeBuffer()
	cursor := edges.Index()

	for back := r.width; back < triggerLookback; back++ {
		if edges.At(cursor-back) != 0 {
			return cursor - back
		}
	}
	return cursor - triggerLookback
}

func (r *Renderer) vline(x, y0, y1 int, col color.RGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		r.canvas.SetRGBA(x, y, col)
	}
}

// blend adds col at the given alpha over the existing pixel.
func (r *Renderer) blend(x, y int, col color.RGBA, alpha uint8) {
	src := color.RGBA{R: col.R, G: col.G, B: col.B, A: alpha}
	draw.Draw(r.canvas, image.Rect(x, y, x+1, y+1), &image.Uniform{C: src}, image.Point{}, draw.Over)
}

func (r *Renderer) caption(text string, x, y int, col color.RGBA) {
	d := font.Drawer{
		Dst:  r.canvas,
		Src:  &image.Uniform{C: col},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// Width and Height report the frame geometry.
func (r *Renderer) Width() int  { return r.width }
func (r *Renderer) Height() int { return r.height }

var chipColors = map[apu.Chip]color.RGBA{
	apu.Chip2A03: {R: 0x50, G: 0xC8, B: 0xFF, A: 0xFF},
	apu.ChipFDS:  {R: 0xFF, G: 0xB0, B: 0x40, A: 0xFF},
	apu.ChipVRC6: {R: 0xFF, G: 0x60, B: 0x60, A: 0xFF},
	apu.ChipVRC7: {R: 0xC0, G: 0x80, B: 0xFF, A: 0xFF},
	apu.ChipMMC5: {R: 0x80, G: 0xFF, B: 0x80, A: 0xFF},
	apu.ChipN163: {R: 0xFF, G: 0x80, B: 0xC0, A: 0xFF},
	apu.ChipS5B:  {R: 0xFF, G: 0xFF, B: 0x80, A: 0xFF},
}

// dutyColors distinguishes the pulse timbres, the way trackers tint
// their pulse scopes per duty setting.
var dutyColors = [4]color.RGBA{
	{R: 0x40, G: 0x90, B: 0xFF, A: 0xFF},
	{R: 0x40, G: 0xC0, B: 0xFF, A: 0xFF},
	{R: 0x40, G: 0xFF, B: 0xE0, A: 0xFF},
	{R: 0x40, G: 0xC0, B: 0xFF, A: 0xFF},
}

func channelColor(c apu.Channel) color.RGBA {
	base, ok := chipColors[c.Chip()]
	if !ok {
		base = color.RGBA{R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF}
	}
	if t, ok := c.Timbre(); ok && t.Kind == apu.TimbreDuty && t.Index < len(dutyColors) {
		base = dutyColors[t.Index]
	}

	// dim silent and muted channels
	if !c.Playing() || c.Muted() {
		base.R /= 3
		base.G /= 3
		base.B /= 3
	}
	return base
}

// captionText labels a lane with its chip and channel, so expansion
// channels stay distinguishable from 2A03 ones of the same name.
func captionText(c apu.Channel) string {
	return c.Chip().String() + ": " + c.Name()
}
