package tubes

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jrockway/nixie-clock/control/pins"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/gpio"
)

const (
	previewCell = 24 // width of one tube in the preview, in pixels
	previewH    = 32
	previewFade = time.Second // tubes not lit for this long are drawn dark
)

var (
	glowColor  = color.RGBA{R: 0xff, G: 0x8c, B: 0x1a, A: 0xff}
	glassColor = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

type glow struct {
	code int
	at   time.Time
}

// Preview sits between the Multiplexer and the real pins, decoding every pulse of the supply back into
// (tube, digit) so the display can be inspected without looking at it.
type Preview struct {
	next pins.Driver
	now  func() time.Time

	mu     sync.Mutex
	levels map[pins.Line]gpio.Level // must hold mu to read or write.
	lit    [8]glow                  // must hold mu to read or write.
}

// NewPreview returns a Preview that forwards writes to next.
func NewPreview(next pins.Driver) *Preview {
	return &Preview{next: next, now: time.Now, levels: make(map[pins.Line]gpio.Level)}
}

// Out implements pins.Driver.
func (p *Preview) Out(l pins.Line, level gpio.Level) {
	p.next.Out(l, level)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels[l] = level
	// Record on the supply's rising edge, and on the last select bit while the supply is held on during a
	// self-test sweep.
	if (l == pins.Enable && level) || (l == pins.Select2 && p.levels[pins.Enable]) {
		p.record()
	}
}

func (p *Preview) bits(lines ...pins.Line) int {
	var v int
	for i, l := range lines {
		if p.levels[l] {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (p *Preview) record() {
	pos := p.bits(pins.Select0, pins.Select1, pins.Select2)
	p.lit[pos] = glow{
		code: p.bits(pins.Cathode0, pins.Cathode1, pins.Cathode2, pins.Cathode3),
		at:   p.now(),
	}
}

// Glyph returns what was last shown at pos: a digit, "." for a dot, "|" for a bar, or "" if nothing has been
// lit there recently.
func (p *Preview) Glyph(pos Position) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.glyph(pos)
}

func (p *Preview) glyph(pos Position) string {
	g := p.lit[pos]
	if g.at.IsZero() || p.now().Sub(g.at) > previewFade {
		return ""
	}
	if !pos.IsTube() {
		return "|"
	}
	if g.code == dotCode {
		return "."
	}
	if d, ok := Digit(g.code); ok {
		return string(rune('0' + d))
	}
	return "?"
}

// Image renders the tubes as they were most recently lit.
func (p *Preview) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8*previewCell, previewH))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	p.mu.Lock()
	defer p.mu.Unlock()
	for pos := BarLeft; pos <= BarRight; pos++ {
		x := int(pos) * previewCell
		glass := image.Rect(x+2, 2, x+previewCell-2, previewH-2)
		draw.Draw(img, glass, image.NewUniform(glassColor), image.Point{}, draw.Src)
		g := p.glyph(pos)
		if g == "" {
			continue
		}
		if g == "|" {
			bar := image.Rect(x+previewCell/2-1, 6, x+previewCell/2+1, previewH-6)
			draw.Draw(img, bar, image.NewUniform(glowColor), image.Point{}, draw.Src)
			continue
		}
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(glowColor),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x+(previewCell-7)/2, previewH/2+5),
		}
		drawer.DrawString(g)
	}
	return img
}

// ServeHTTP serves the current tube state as a PNG.
func (p *Preview) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, p.Image()); err != nil {
		log.Printf("encoding tube preview: %v", err)
	}
}
