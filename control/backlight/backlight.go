// Package backlight drives the RGB LED strip under the tubes, and retains what it last showed for debugging
// without the strip attached.
package backlight

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/apa102"
	"periph.io/x/devices/v3/nrzled"
)

// DefaultLength is the number of LEDs on the clock: one under each tube.
const DefaultLength = 6

const previewScale = 20

// Color is a packed 0xRRGGBB value.
type Color uint32

func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// NRGBA converts c to an opaque color.NRGBA.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xff}
}

// Palette holds the dim reds and oranges the backlight flickers between.  The values are in the strip's
// channel wiring, which is why they read as blues and greens.
var Palette = []Color{
	0x000004,
	0x000208,
	0x000004,
	0x000008,
	0x000004,
	0x000004,
	0x000208,
	0x000004,
	0,
}

// Backlight colors while a temperature is shown.
const (
	Warm  Color = 0x000410
	Frost Color = 0x100400
)

var (
	rendersCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backlight_renders",
		Help: "count of frames written to the led strip",
	})
	renderErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backlight_render_errors",
		Help: "count of frames that the led strip driver failed to write",
	})
)

type device interface {
	Write(p []byte) (int, error)
	Halt() error
}

// Strip is a fixed-length LED strip.  SetPixel, Fill and Clear only change the pending frame; Render sends it.
// Strip is owned by one goroutine, except for ServeHTTP and Shown, which may be called from anywhere.
type Strip struct {
	dev    device
	encode func([]Color) []byte
	pixels []Color

	shownMu sync.Mutex
	shown   []Color // must hold shownMu to read or write.
}

func newStrip(dev device, encode func([]Color) []byte, n int) *Strip {
	return &Strip{
		dev:    dev,
		encode: encode,
		pixels: make([]Color, n),
		shown:  make([]Color, n),
	}
}

// NewHeadless returns a strip that only remembers what it would have shown.
func NewHeadless(n int) *Strip {
	return newStrip(nil, nil, n)
}

// NewWS281x returns a strip of WS2811/WS2812 LEDs driven by NRZ-encoding frames onto the SPI port's MOSI
// line.  order is the order the LEDs expect the channels on the wire, like "GRB".
func NewWS281x(p spi.Port, n int, order string) (*Strip, error) {
	encode, err := channelEncoder(order)
	if err != nil {
		return nil, err
	}
	opts := &nrzled.Opts{
		NumPixels: n,
		Channels:  3,
		Freq:      800 * physic.KiloHertz,
	}
	leds, err := nrzled.NewSPI(p, opts)
	if err != nil {
		return nil, fmt.Errorf("init nrzled: %w", err)
	}
	return newStrip(leds, encode, n), nil
}

// NewAPA102 returns a strip of APA102 LEDs on the SPI port.
func NewAPA102(p spi.Port, n int) (*Strip, error) {
	opts := &apa102.Opts{
		NumPixels:        n,
		Intensity:        255,
		Temperature:      apa102.NeutralTemp,
		DisableGlobalPWM: true,
	}
	leds, err := apa102.New(p, opts)
	if err != nil {
		return nil, fmt.Errorf("init apa102: %w", err)
	}
	encode := func(c []Color) []byte {
		px := make([]color.NRGBA, len(c))
		for i := range c {
			px[i] = c[i].NRGBA()
		}
		return apa102.ToRGB(px)
	}
	return newStrip(leds, encode, n), nil
}

// channelEncoder returns a function that lays out pixels on the wire in the given channel order.
func channelEncoder(order string) (func([]Color) []byte, error) {
	order = strings.ToUpper(order)
	if len(order) != 3 || !strings.ContainsRune(order, 'R') || !strings.ContainsRune(order, 'G') || !strings.ContainsRune(order, 'B') {
		return nil, fmt.Errorf("channel order %q: want a permutation of RGB", order)
	}
	return func(c []Color) []byte {
		buf := make([]byte, 0, 3*len(c))
		for _, px := range c {
			for _, ch := range order {
				switch ch {
				case 'R':
					buf = append(buf, px.R())
				case 'G':
					buf = append(buf, px.G())
				case 'B':
					buf = append(buf, px.B())
				}
			}
		}
		return buf
	}, nil
}

// Len returns the number of LEDs.
func (s *Strip) Len() int { return len(s.pixels) }

// SetPixel sets LED i in the pending frame.  Out-of-range indices are ignored.
func (s *Strip) SetPixel(i int, c Color) {
	if i < 0 || i >= len(s.pixels) {
		return
	}
	s.pixels[i] = c
}

// Fill sets every LED in the pending frame to c.
func (s *Strip) Fill(c Color) {
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

// Clear turns every LED off in the pending frame.
func (s *Strip) Clear() { s.Fill(0) }

// Render sends the pending frame to the strip.
func (s *Strip) Render() error {
	s.shownMu.Lock()
	copy(s.shown, s.pixels)
	s.shownMu.Unlock()
	if s.dev == nil {
		return nil
	}
	if _, err := s.dev.Write(s.encode(s.pixels)); err != nil {
		renderErrorsCounter.Inc()
		return fmt.Errorf("write to led strip: %w", err)
	}
	rendersCounter.Inc()
	return nil
}

// Blank turns the strip off.
func (s *Strip) Blank() error {
	s.Clear()
	if err := s.Render(); err != nil {
		return fmt.Errorf("blank strip: %w", err)
	}
	return nil
}

// Halt releases the strip driver.  The strip must not be used afterwards.
func (s *Strip) Halt() error {
	if s.dev == nil {
		return nil
	}
	if err := s.dev.Halt(); err != nil {
		return fmt.Errorf("halt led strip: %w", err)
	}
	return nil
}

// Shown returns the last frame sent to the strip.
func (s *Strip) Shown() []Color {
	s.shownMu.Lock()
	defer s.shownMu.Unlock()
	return append([]Color(nil), s.shown...)
}

// ServeHTTP serves the last rendered frame as a PNG.  The palette is very dim, so each swatch is scaled up to
// full brightness keeping its hue.
func (s *Strip) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	shown := s.Shown()
	img := image.NewNRGBA(image.Rect(0, 0, len(shown)*previewScale, previewScale))
	for i, c := range shown {
		r := image.Rect(i*previewScale+1, 1, (i+1)*previewScale-1, previewScale-1)
		draw.Draw(img, r, image.NewUniform(brighten(c)), image.Point{}, draw.Src)
	}
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		log.Printf("encoding backlight preview: %v", err)
	}
}

func brighten(c Color) color.NRGBA {
	max := c.R()
	if c.G() > max {
		max = c.G()
	}
	if c.B() > max {
		max = c.B()
	}
	if max == 0 {
		return color.NRGBA{A: 0xff}
	}
	scale := 255 / float64(max)
	return color.NRGBA{
		R: uint8(scale * float64(c.R())),
		G: uint8(scale * float64(c.G())),
		B: uint8(scale * float64(c.B())),
		A: 0xff,
	}
}
