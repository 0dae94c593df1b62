package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jrockway/nixie-clock/control/backlight"
	"github.com/jrockway/nixie-clock/control/clock"
	"github.com/jrockway/nixie-clock/control/pins"
	"github.com/jrockway/nixie-clock/control/thermometer"
	"github.com/jrockway/nixie-clock/control/timesync"
	"github.com/jrockway/nixie-clock/control/tubes"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var (
	gpioBackend  = flag.String("gpio", "periph", "gpio driver for the tubes: periph, rpio, or none")
	spiName      = flag.String("spi", "SPI1.0", "spi port that the led strip is on; empty for no strip")
	stripType    = flag.String("strip", "ws281x", "led strip type: ws281x or apa102")
	stripOrder   = flag.String("strip-order", "GBR", "order that a ws281x strip expects its color channels in")
	ledCount     = flag.Int("leds", backlight.DefaultLength, "number of leds on the strip")
	selfTest     = flag.Bool("selftest", true, "sweep every digit across the tubes at startup")
	thermometers = flag.Bool("thermometers", true, "periodically show the inside and outside temperature")
	dots         = flag.Bool("dots", true, "show the running dots")
	clearOnExit  = flag.Bool("clear-on-exit", true, "turn off the led strip on exit")
	probePath    = flag.String("probe", thermometer.DefaultProbePath, "sysfs file of the inside temperature probe; empty to disable")
	i2cName      = flag.String("i2c", "", "i2c bus of a bme280 to read the inside temperature from instead of the probe")
	weatherURL   = flag.String("weather-url", thermometer.DefaultWeatherURL, "current weather report url; $OPENWEATHER_APPID is added as its APPID; empty to disable")
	refresh      = flag.Duration("refresh", thermometer.DefaultPeriod, "how often to read the thermometers")
	chronyAddr   = flag.String("chrony", timesync.DefaultAddress, "address of chronyd to check the clock's sync status with at startup; empty to skip")
	debugAddr    = flag.String("debug-addr", "", "address to bind for the debug/metrics server; empty for none")
	logFile      = flag.String("log-file", "", "file to log to, rotated when it grows; empty for stderr")
)

func openPins() (pins.Driver, func() error, error) {
	noop := func() error { return nil }
	switch *gpioBackend {
	case "periph":
		p, err := pins.NewPeriph(pins.BCM)
		if err != nil {
			return nil, nil, fmt.Errorf("periph: %w", err)
		}
		return p, noop, nil
	case "rpio":
		p, err := pins.NewRpio(pins.BCM)
		if err != nil {
			return nil, nil, fmt.Errorf("rpio: %w", err)
		}
		return p, p.Close, nil
	case "none":
		return pins.Discard{}, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown gpio driver %q", *gpioBackend)
}

func openStrip() (*backlight.Strip, spi.PortCloser, error) {
	if *spiName == "" {
		log.Printf("no spi port; led strip is headless")
		return backlight.NewHeadless(*ledCount), nil, nil
	}
	p, err := spireg.Open(*spiName)
	if err != nil {
		return nil, nil, fmt.Errorf("open spi port %q: %w", *spiName, err)
	}
	var s *backlight.Strip
	switch *stripType {
	case "ws281x":
		s, err = backlight.NewWS281x(p, *ledCount, *stripOrder)
	case "apa102":
		s, err = backlight.NewAPA102(p, *ledCount)
	default:
		err = fmt.Errorf("unknown strip type %q", *stripType)
	}
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return s, p, nil
}

// sources returns the thermometers to read.  Sensors that fail to initialize are logged and left out; the
// clock is still useful without them.
func sources() (inside, outside thermometer.Source, closeBus func() error) {
	closeBus = func() error { return nil }
	switch {
	case *i2cName != "":
		bus, err := i2creg.Open(*i2cName)
		if err != nil {
			log.Printf("inside temperature disabled: open i2c bus %q: %v", *i2cName, err)
			break
		}
		env, err := thermometer.NewBME280(bus, thermometer.BME280Address)
		if err != nil {
			log.Printf("inside temperature disabled: %v", err)
			bus.Close()
			break
		}
		inside, closeBus = env, bus.Close
	case *probePath != "":
		inside = &thermometer.Probe{Path: *probePath}
	}
	if *weatherURL != "" {
		u, err := thermometer.WeatherURL(*weatherURL, os.Getenv("OPENWEATHER_APPID"))
		if err != nil {
			log.Printf("outside temperature disabled: %v", err)
			return inside, nil, closeBus
		}
		outside = thermometer.NewWeather(u)
	}
	return inside, outside, closeBus
}

func checkTime() {
	ctx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	r, err := timesync.Check(ctx, *chronyAddr)
	if err != nil {
		log.Printf("check clock sync: %v", err)
		return
	}
	if !r.Synchronized() {
		log.Printf("chronyd: %v; the displayed time may be wrong", r)
		return
	}
	log.Printf("chronyd: %v", r)
}

func newDebugServer(addr string, preview *tubes.Preview, strip *backlight.Strip) *http.Server {
	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/tubes.png", http.StatusFound))
	r.Handle("/tubes.png", preview)
	r.Handle("/backlight.png", strip)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/debug/").Handler(http.DefaultServeMux)
	return &http.Server{Addr: addr, Handler: r}
}

// serveDebug runs srv until ctx is done.  A server that cannot listen is logged and returns nil, so the
// display keeps running without it.
func serveDebug(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("debug server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("debug server: %v", err)
		}
		return nil
	case <-ctx.Done():
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		defer c()
		if err := srv.Shutdown(tctx); err != nil {
			return fmt.Errorf("shut down debug server: %w", err)
		}
		return nil
	}
}

func main() {
	flag.Parse()
	if *logFile != "" {
		lj := &lumberjack.Logger{Filename: *logFile, MaxSize: 10, MaxBackups: 3, MaxAge: 28}
		defer lj.Close()
		log.SetOutput(lj)
	}
	if _, err := host.Init(); err != nil {
		log.Fatalf("init periph.io: %v", err)
	}

	driver, closePins, err := openPins()
	if err != nil {
		log.Fatalf("init gpio: %v", err)
	}
	var preview *tubes.Preview
	if *debugAddr != "" {
		preview = tubes.NewPreview(driver)
		driver = preview
	}
	strip, port, err := openStrip()
	if err != nil {
		log.Fatalf("init led strip: %v", err)
	}
	if *chronyAddr != "" {
		checkTime()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("%v; shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	var temps clock.Temperatures
	closeBus := func() error { return nil }
	if *thermometers {
		cache := thermometer.NewCache()
		var inside, outside thermometer.Source
		inside, outside, closeBus = sources()
		refresher := thermometer.NewRefresher(cache, inside, outside)
		refresher.Period = *refresh
		g.Go(func() error { return refresher.Run(gctx) })
		temps = cache
	}
	if *debugAddr != "" {
		srv := newDebugServer(*debugAddr, preview, strip)
		g.Go(func() error { return serveDebug(gctx, srv) })
	}

	cl := clock.New(tubes.New(driver), strip, temps)
	cl.Dots = *dots
	if *selfTest {
		cl.StartupSelfTest(10)
	}
	cl.Run(gctx)

	cancel()
	if err := g.Wait(); err != nil {
		log.Printf("background task: %v", err)
	}
	signal.Stop(sigCh)
	if *clearOnExit {
		if err := strip.Blank(); err != nil {
			log.Printf("blank led strip: %v", err)
		}
	}
	if err := strip.Halt(); err != nil {
		log.Printf("halt led strip: %v", err)
	}
	if port != nil {
		if err := port.Close(); err != nil {
			log.Printf("close spi port: %v", err)
		}
	}
	if err := closePins(); err != nil {
		log.Printf("close gpio: %v", err)
	}
	if err := closeBus(); err != nil {
		log.Printf("close i2c bus: %v", err)
	}
	log.Printf("exiting")
}
