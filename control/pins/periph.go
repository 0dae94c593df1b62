package pins

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Periph drives lines through periph.io.  The host drivers must already be initialized.
type Periph struct {
	pins [numLines]gpio.PinIO
}

// NewPeriph looks up every line in the GPIO registry and drives it low.
func NewPeriph(wiring map[Line]int) (*Periph, error) {
	p := new(Periph)
	for _, l := range Lines {
		n, ok := wiring[l]
		if !ok {
			return nil, fmt.Errorf("line %v: not wired", l)
		}
		name := fmt.Sprintf("GPIO%d", n)
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("line %v: no such pin %q", l, name)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("line %v: set %s as output: %w", l, name, err)
		}
		p.pins[l] = pin
	}
	return p, nil
}

// Out implements Driver.
func (p *Periph) Out(l Line, level gpio.Level) {
	p.pins[l].Out(level) //nolint:errcheck
}
