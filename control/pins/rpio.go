package pins

import (
	"fmt"

	"github.com/stianeikeland/go-rpio"
	"periph.io/x/conn/v3/gpio"
)

// Rpio drives lines by poking the BCM2835 GPIO registers through /dev/gpiomem.  It is an alternative to
// Periph for kernels where the periph.io host drivers do not load.
type Rpio struct {
	pins [numLines]rpio.Pin
}

// NewRpio maps GPIO memory and sets every line as a low output.  Call Close to unmap.
func NewRpio(wiring map[Line]int) (*Rpio, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	r := new(Rpio)
	for _, l := range Lines {
		n, ok := wiring[l]
		if !ok {
			rpio.Close()
			return nil, fmt.Errorf("line %v: not wired", l)
		}
		pin := rpio.Pin(n)
		pin.Output()
		pin.Low()
		r.pins[l] = pin
	}
	return r, nil
}

// Out implements Driver.
func (r *Rpio) Out(l Line, level gpio.Level) {
	if level {
		r.pins[l].High()
	} else {
		r.pins[l].Low()
	}
}

// Close unmaps the GPIO registers.
func (r *Rpio) Close() error {
	return rpio.Close()
}
