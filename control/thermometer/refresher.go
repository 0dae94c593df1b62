package thermometer

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

// DefaultPeriod is how long the Refresher sleeps between refreshes.
const DefaultPeriod = time.Hour

var (
	refreshCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thermometer_refreshes",
		Help: "count of refresh cycles started",
	})
	readErrorsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thermometer_read_errors",
		Help: "count of failed sensor reads, by source",
	}, []string{"source"})
	temperatureGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "thermometer_celsius",
		Help: "last successfully read temperature, by source",
	}, []string{"source"})
)

// Source reads one thermometer.
type Source interface {
	Read(ctx context.Context) (Celsius, error)
}

// Refresher periodically reads the thermometers into a Cache.  A nil source is skipped.
type Refresher struct {
	cache   *Cache
	inside  Source
	outside Source

	Period time.Duration
	Clock  clockwork.Clock
}

// NewRefresher returns a Refresher that refreshes c hourly.
func NewRefresher(c *Cache, inside, outside Source) *Refresher {
	return &Refresher{
		cache:   c,
		inside:  inside,
		outside: outside,
		Period:  DefaultPeriod,
		Clock:   clockwork.NewRealClock(),
	}
}

// Run refreshes immediately and then every Period until the context is cancelled.  It owns the cache's lock
// except while waiting for the next refresh, so a cancelled Run releases the lock before returning.
func (r *Refresher) Run(ctx context.Context) error {
	l := trace.NewEventLog("sensor", "thermometers")
	defer l.Finish()

	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	log.Printf("starting thermometer refresh loop")
	for {
		if ctx.Err() != nil {
			l.Printf("cancelled before refresh")
			return nil
		}
		r.refresh(ctx, l)
		deadline := r.Clock.Now().Add(r.Period)
		l.Printf("next refresh at %v", deadline.Format("15:04:05"))
		if r.cache.waitUntil(ctx, r.Clock, deadline) == Signaled {
			l.Printf("cancelled while waiting")
			return nil
		}
	}
}

// refresh reads every source.  Must hold the cache's lock.
func (r *Refresher) refresh(ctx context.Context, l trace.EventLog) {
	refreshCounter.Inc()
	snap := &r.cache.snap
	if t, ok := r.read(ctx, l, "inside", r.inside); ok {
		snap.Inside, snap.InsideValid = t, true
	}
	if t, ok := r.read(ctx, l, "outside", r.outside); ok {
		snap.Outside, snap.OutsideValid = t, true
	}
}

func (r *Refresher) read(ctx context.Context, l trace.EventLog, name string, src Source) (Celsius, bool) {
	if src == nil {
		return 0, false
	}
	t, err := src.Read(ctx)
	if err != nil {
		readErrorsCounter.WithLabelValues(name).Inc()
		l.Errorf("read %s temperature: %v", name, err)
		log.Printf("read %s temperature: %v", name, err)
		return 0, false
	}
	temperatureGauge.WithLabelValues(name).Set(float64(t))
	l.Printf("%s temperature: %.2f", name, float64(t))
	return t, true
}
