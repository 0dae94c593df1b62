// Package clock decides what the nixie tubes show and drives them.
package clock

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrockway/nixie-clock/control/backlight"
	"github.com/jrockway/nixie-clock/control/thermometer"
	"github.com/jrockway/nixie-clock/control/tubes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

var (
	iterationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_iterations",
		Help: "count of control loop iterations, by the mode that was rendered",
	}, []string{"mode"})

	temperatureSkipsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "temperature_skips",
		Help: "count of iterations in the temperature window that showed the time instead",
	})

	iterationTimeMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loop_iteration_time",
		Help:    "wall time taken by one control loop iteration, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(100000, 2, 16),
	})
)

// Mode is what the tubes show during one iteration of the control loop.
type Mode int

const (
	Normal Mode = iota
	SelfTest
	Temperature
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case SelfTest:
		return "self-test"
	case Temperature:
		return "temperature"
	}
	return "unknown"
}

// ModeAt returns the mode for a wall clock reading.  A one-second self-test runs every five minutes, and the
// temperature shows for three seconds every three minutes; the time shows otherwise.  Self-test wins any
// tie.  Late in the hour the temperature window reaches past second 59 and is cut short.
func ModeAt(minute, second int) Mode {
	switch {
	case minute%5 == 1 && second == minute:
		return SelfTest
	case minute%3 == 1 && second > minute && second <= minute+3:
		return Temperature
	}
	return Normal
}

// Arbitrate returns the mode for t.
func Arbitrate(t time.Time) Mode {
	return ModeAt(t.Minute(), t.Second())
}

// Backlight is the LED strip behind the tubes.
type Backlight interface {
	Len() int
	SetPixel(i int, c backlight.Color)
	Fill(c backlight.Color)
	Render() error
}

// Temperatures supplies readings without ever blocking.
type Temperatures interface {
	TryRead() (thermometer.Snapshot, bool)
}

// Clock runs the display.  It is not safe for concurrent use.
type Clock struct {
	tubes *tubes.Multiplexer
	leds  Backlight
	temps Temperatures // nil if temperatures are disabled.

	Clock    clockwork.Clock
	Location *time.Location
	Rand     *rand.Rand
	Palette  []backlight.Color
	Dots     bool // show the running dots.

	renderFailing bool
}

// New returns a Clock showing local time.
func New(m *tubes.Multiplexer, leds Backlight, temps Temperatures) *Clock {
	return &Clock{
		tubes:    m,
		leds:     leds,
		temps:    temps,
		Clock:    clockwork.NewRealClock(),
		Location: time.Local,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		Palette:  backlight.Palette,
	}
}

// StartupSelfTest sweeps every digit across the tubes n times and leaves the bar position selected.
func (c *Clock) StartupSelfTest(n int) {
	for i := 0; i < n; i++ {
		c.tubes.RunAllDigits()
	}
	c.tubes.Select(tubes.BarLeft)
}

// Run drives the tubes until the context is cancelled.  A digit or sweep that has started always finishes.
func (c *Clock) Run(ctx context.Context) {
	l := trace.NewEventLog("control", "loop")
	defer l.Finish()

	last := Mode(-1)
	for i := 0; ctx.Err() == nil; i++ {
		start := time.Now()
		mode := c.tick(i, c.Clock.Now().In(c.Location))
		if mode != last {
			l.Printf("iteration %d: showing %v", i, mode)
			last = mode
		}
		iterationTimeMetric.Observe(float64(time.Since(start).Nanoseconds()))
	}
	l.Printf("cancelled; exiting")
}

// tick runs iteration i of the control loop at now, returning the mode actually rendered.
func (c *Clock) tick(i int, now time.Time) Mode {
	commit := i%4 == 0
	mode := Arbitrate(now)
	switch mode {
	case SelfTest:
		c.tubes.RunAllDigits()
	case Temperature:
		snap, ok := c.showTemperature()
		if !ok {
			temperatureSkipsCounter.Inc()
			mode = Normal
			c.showTime(now)
			break
		}
		c.leds.Fill(temperatureColor(snap))
		commit = true
	default:
		c.showTime(now)
	}
	iterationsCounter.WithLabelValues(mode.String()).Inc()

	if commit {
		if mode != Temperature {
			c.shuffle()
		}
		c.render()
	}
	return mode
}

func (c *Clock) showTime(now time.Time) {
	sub := time.Duration(now.Nanosecond())
	c.tubes.ShowTime(now.Hour(), now.Minute(), now.Second())
	c.tubes.ShowBar(sub)
	if c.Dots {
		c.tubes.ShowRunningDot(now.Unix(), sub)
	}
}

// showTemperature shows the inside temperature on the hour tubes and the outside temperature on the second
// tubes.  It fails if the cache is being refreshed or holds no readings at all.
func (c *Clock) showTemperature() (thermometer.Snapshot, bool) {
	if c.temps == nil {
		return thermometer.Snapshot{}, false
	}
	snap, ok := c.temps.TryRead()
	if !ok || (!snap.InsideValid && !snap.OutsideValid) {
		return snap, false
	}
	if snap.InsideValid {
		c.tubes.ShowPair(tubes.HourTens, tubes.HourUnits, abs(snap.Inside.Whole()))
	}
	if snap.OutsideValid {
		c.tubes.ShowPair(tubes.SecondTens, tubes.SecondUnits, abs(snap.Outside.Whole()))
	}
	return snap, true
}

func temperatureColor(snap thermometer.Snapshot) backlight.Color {
	if snap.OutsideValid && snap.Outside < 0 {
		return backlight.Frost
	}
	return backlight.Warm
}

// shuffle gives every pixel a random color from the palette.
func (c *Clock) shuffle() {
	if len(c.Palette) == 0 {
		return
	}
	for i := 0; i < c.leds.Len(); i++ {
		c.leds.SetPixel(i, c.Palette[c.Rand.Intn(len(c.Palette))])
	}
}

// render commits the strip.  Failures are logged once until the strip recovers.
func (c *Clock) render() {
	err := c.leds.Render()
	switch {
	case err != nil && !c.renderFailing:
		log.Printf("render backlight: %v", err)
		c.renderFailing = true
	case err == nil && c.renderFailing:
		log.Printf("backlight recovered")
		c.renderFailing = false
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
