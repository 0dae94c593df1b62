// Package timesync asks chronyd whether the system clock can be trusted.  The clock only shows the system
// time, so a Raspberry Pi that booted without network shows the wrong time until chronyd catches up.
package timesync

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/facebookincubator/ntp/protocol/chrony"
)

// DefaultAddress is chronyd's command port.
const DefaultAddress = "localhost:323"

// leapUnsynchronized is chronyd's leap status while it has no usable source.
const leapUnsynchronized = 3

// Report summarizes chronyd's tracking state.
type Report struct {
	RefID      string
	Stratum    uint16
	LeapStatus uint16
	Offset     time.Duration // last measured offset of the system clock.
	Correction time.Duration // what is still being slewed out.
	RefTime    time.Time
}

// Synchronized reports whether chronyd believes the clock is set.
func (r *Report) Synchronized() bool {
	return r.LeapStatus != leapUnsynchronized && r.Stratum > 0
}

func (r *Report) String() string {
	state := "synchronized"
	if !r.Synchronized() {
		state = "unsynchronized"
	}
	return fmt.Sprintf("%s to %s at stratum %d, offset %v, correction %v", state, r.RefID, r.Stratum, r.Offset, r.Correction)
}

func newReport(t *chrony.ReplyTracking) *Report {
	return &Report{
		RefID:      refName(t.RefID),
		Stratum:    t.Stratum,
		LeapStatus: t.LeapStatus,
		Offset:     seconds(t.LastOffset),
		Correction: seconds(t.CurrentCorrection),
		RefTime:    t.RefTime,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Check queries the chronyd at addr once.  The context's deadline bounds the whole exchange; without one, a
// second is allowed.
func Check(ctx context.Context, addr string) (*Report, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	c := chrony.Client{Sequence: 1, Connection: conn}
	res, err := c.Communicate(chrony.NewTrackingPacket())
	if err != nil {
		return nil, fmt.Errorf("get tracking info: communicate: %w", err)
	}
	tracking, ok := res.(*chrony.ReplyTracking)
	if !ok {
		return nil, fmt.Errorf("tracking reply was of unexpected type: %#v", res)
	}
	return newReport(tracking), nil
}

// refName renders a reference id the way chronyc does: reference clocks put up to four ASCII characters in
// it, and NTP servers their IPv4 address.
func refName(id uint32) string {
	b := []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	name := strings.TrimRight(string(b), "\x00")
	if name == "" {
		return net.IP(b).String()
	}
	for _, r := range name {
		if r < '0' || r > 'z' {
			return net.IP(b).String()
		}
	}
	return name
}
