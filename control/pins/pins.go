// Package pins drives the clock's GPIO lines.  Writes are fire-and-forget: errors from the underlying driver
// are dropped, and the tubes give no feedback to check against.
package pins

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Line is a logical output line on the driver board.
type Line int

const (
	// Enable switches the shared high-voltage supply for whichever tube is selected.
	Enable Line = iota
	// Select0..Select2 carry the 3-bit tube address.
	Select0
	Select1
	Select2
	// Dot0 and Dot1 drive the two indicator dots.
	Dot0
	Dot1
	// Cathode0..Cathode3 carry the 4-bit cathode code for the driver IC.
	Cathode0
	Cathode1
	Cathode2
	Cathode3

	numLines
)

// Lines lists every line in the order they are initialized.
var Lines = []Line{Enable, Select0, Select1, Select2, Dot0, Dot1, Cathode0, Cathode1, Cathode2, Cathode3}

var lineNames = [...]string{"enable", "select0", "select1", "select2", "dot0", "dot1", "cathode0", "cathode1", "cathode2", "cathode3"}

func (l Line) String() string {
	if l < 0 || l >= numLines {
		return fmt.Sprintf("line(%d)", int(l))
	}
	return lineNames[l]
}

// BCM maps each line to the Broadcom GPIO number it is wired to on the clock's Raspberry Pi header.
var BCM = map[Line]int{
	Enable:   8,
	Select0:  11,
	Select1:  10,
	Select2:  9,
	Dot0:     7,
	Dot1:     6,
	Cathode0: 5,
	Cathode1: 4,
	Cathode2: 3,
	Cathode3: 2,
}

// Driver sets output lines.
type Driver interface {
	Out(l Line, level gpio.Level)
}

// Bits writes the low len(lines) bits of v to lines, least significant bit first.
func Bits(d Driver, v int, lines ...Line) {
	for i, l := range lines {
		d.Out(l, gpio.Level(v&(1<<uint(i)) != 0))
	}
}

// Discard is a Driver that ignores every write, for running without the tube board attached.
type Discard struct{}

func (Discard) Out(Line, gpio.Level) {}
