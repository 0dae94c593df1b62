// Package tubes multiplexes digits onto the clock's nixie tubes.
//
// All six tubes share one set of cathode lines and one high-voltage supply, so only one tube is ever lit.
// Each call selects a tube, puts a digit's cathode code on the shared lines, and switches the supply on for
// a short dwell.  Cycling through the tubes fast enough makes them all appear lit at once.
package tubes

import (
	"time"

	"github.com/jrockway/nixie-clock/control/pins"
	"periph.io/x/conn/v3/gpio"
)

// Position is the 3-bit select code of a tube.  Codes 1 through 6 address the digit tubes from left to
// right; 0 and 7 address the separator bars.
type Position uint8

const (
	BarLeft Position = iota
	HourTens
	HourUnits
	MinuteTens
	MinuteUnits
	SecondTens
	SecondUnits
	BarRight
)

// Tubes is the number of digit tubes.
const Tubes = 6

// Tube returns the position of the i'th digit tube, counting from zero on the left.
func Tube(i int) Position { return Position(i + 1) }

// IsTube reports whether p addresses a digit tube rather than a bar.
func (p Position) IsTube() bool { return p >= HourTens && p <= SecondUnits }

const (
	DefaultDwell  = 3 * time.Millisecond   // long enough for the gas to ignite visibly
	DefaultSettle = 100 * time.Microsecond // lets the supply discharge before the next tube
)

// cathodeCodes translates a digit into the code the driver IC needs; its outputs are not wired in digit
// order.
var cathodeCodes = [10]int{3, 4, 5, 13, 12, 8, 9, 1, 0, 2}

// dotCode is a cathode code that lights no digit.  It is driven while a dot is lit.
const dotCode = 6

// Code returns the cathode code for digit d.
func Code(d int) (int, bool) {
	if d < 0 || d >= len(cathodeCodes) {
		return 0, false
	}
	return cathodeCodes[d], true
}

// Digit is the inverse of Code.
func Digit(code int) (int, bool) {
	for d, c := range cathodeCodes {
		if c == code {
			return d, true
		}
	}
	return 0, false
}

// Dot states on the two dot lines.
const (
	dotsRight = 0b00
	dotsIdle  = 0b01
	dotsLeft  = 0b11
)

// Multiplexer lights digits on the tubes.  It is not safe for concurrent use; the control loop owns it.
type Multiplexer struct {
	pins   pins.Driver
	Dwell  time.Duration
	Settle time.Duration
	Sleep  func(time.Duration)
}

// New returns a Multiplexer using the default timings.
func New(d pins.Driver) *Multiplexer {
	return &Multiplexer{
		pins:   d,
		Dwell:  DefaultDwell,
		Settle: DefaultSettle,
		Sleep:  time.Sleep,
	}
}

// Select addresses the tube at p without lighting it.
func (m *Multiplexer) Select(p Position) {
	pins.Bits(m.pins, int(p), pins.Select0, pins.Select1, pins.Select2)
}

func (m *Multiplexer) cathodes(code int) {
	pins.Bits(m.pins, code, pins.Cathode0, pins.Cathode1, pins.Cathode2, pins.Cathode3)
}

func (m *Multiplexer) dots(state int) {
	pins.Bits(m.pins, state, pins.Dot0, pins.Dot1)
}

// pulse lights the selected tube for one dwell.
func (m *Multiplexer) pulse() {
	m.pins.Out(pins.Enable, gpio.High)
	m.Sleep(m.Dwell)
	m.pins.Out(pins.Enable, gpio.Low)
	m.Sleep(m.Settle)
}

// Show lights digit d on the tube at p for one dwell.  Digits outside 0-9 leave the tube dark.
func (m *Multiplexer) Show(p Position, d int) {
	code, ok := Code(d)
	if !ok {
		return
	}
	m.Select(p)
	m.cathodes(code)
	m.pulse()
}

// ShowPair shows the last two decimal digits of v on a pair of tubes.
func (m *Multiplexer) ShowPair(tens, units Position, v int) {
	m.Show(tens, v/10%10)
	m.Show(units, v%10)
}

// ShowTime shows hh:mm:ss across all six tubes.
func (m *Multiplexer) ShowTime(hour, minute, second int) {
	m.ShowPair(HourTens, HourUnits, hour)
	m.ShowPair(MinuteTens, MinuteUnits, minute)
	m.ShowPair(SecondTens, SecondUnits, second)
}

// RunAllDigits sweeps every digit across every tube.  The supply stays on for the whole sweep, and each digit
// is shown on all tubes before moving to the next one, so a dead cathode stands out.
func (m *Multiplexer) RunAllDigits() {
	m.pins.Out(pins.Enable, gpio.High)
	for d := range cathodeCodes {
		m.cathodes(cathodeCodes[d])
		for i := 0; i < Tubes; i++ {
			m.Select(Tube(i))
			m.Sleep(m.Dwell)
		}
	}
	m.pins.Out(pins.Enable, gpio.Low)
}

// BarAt returns which bar to light at the given offset into the second; the bars alternate twice a second.
func BarAt(sub time.Duration) Position {
	if sub < 500*time.Millisecond {
		return BarLeft
	}
	return BarRight
}

// ShowBar lights the bar for the given offset into the second.
func (m *Multiplexer) ShowBar(sub time.Duration) {
	m.Select(BarAt(sub))
	m.pulse()
}

const (
	dotStep  = 80 * time.Millisecond
	dotCount = 2 * Tubes
)

// DotAt returns the running dot to light at sub into the Unix second sec.  Every seventh second the dots run
// right to left across the tubes, and on the second after that they run back.  The cycle counts from the
// epoch, so it does not restart at the top of each minute.  ok is false for all other instants.
func DotAt(sec int64, sub time.Duration) (p Position, left bool, ok bool) {
	d := int(sub / dotStep)
	if d >= dotCount || d < 0 {
		return 0, false, false
	}
	switch sec % 7 {
	case 0:
		return Tube(Tubes - 1 - d/2), d%2 == 1, true
	case 1:
		return Tube(d / 2), d%2 == 0, true
	}
	return 0, false, false
}

// ShowDot lights the left or right dot of the tube at p.
func (m *Multiplexer) ShowDot(p Position, left bool) {
	m.Select(p)
	if left {
		m.dots(dotsLeft)
	} else {
		m.dots(dotsRight)
	}
	m.cathodes(dotCode)
	m.pulse()
	m.dots(dotsIdle)
}

// ShowRunningDot lights the running dot for the given instant, if any.
func (m *Multiplexer) ShowRunningDot(sec int64, sub time.Duration) {
	if p, left, ok := DotAt(sec, sub); ok {
		m.ShowDot(p, left)
	}
}
