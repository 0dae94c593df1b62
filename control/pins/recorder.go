package pins

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Event is one recorded pin write or pause.
type Event struct {
	Line  Line
	Level gpio.Level
	Sleep time.Duration // non-zero for pauses; Line and Level are then meaningless
}

func (e Event) String() string {
	if e.Sleep != 0 {
		return "sleep " + e.Sleep.String()
	}
	return fmt.Sprintf("%v=%v", e.Line, e.Level)
}

// Recorder is a Driver that remembers every write, and every pause taken through its Sleep method, so tests
// can compare whole pin sequences.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	levels [numLines]gpio.Level
}

// Out implements Driver.
func (r *Recorder) Out(l Line, level gpio.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Line: l, Level: level})
	r.levels[l] = level
}

// Sleep records a pause without actually pausing.
func (r *Recorder) Sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Sleep: d})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Level returns the last level written to l.
func (r *Recorder) Level(l Line) gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[l]
}

// Reset forgets the recorded events but keeps the current levels.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// String renders the recorded events one per line.
func (r *Recorder) String() string {
	buf := new(strings.Builder)
	for _, e := range r.Events() {
		buf.WriteString(e.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}
