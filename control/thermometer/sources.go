package thermometer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// DefaultProbePath is the sysfs file of the DS18B20 on the clock's 1-Wire bus.
const DefaultProbePath = "/sys/bus/w1/devices/28-01192d308339/temperature"

// Probe reads a 1-Wire temperature sensor through sysfs.  The file holds thousandths of a degree.
type Probe struct {
	Path string
}

// Read implements Source.
func (p *Probe) Read(ctx context.Context) (Celsius, error) {
	bytes, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, fmt.Errorf("read probe: %w", err)
	}
	str := strings.TrimSpace(string(bytes))
	mc, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parse probe reading %q: %w", str, err)
	}
	return Celsius(mc) / 1000, nil
}

const (
	absoluteZero  = 273.15
	fetchTimeout  = 15 * time.Second
	maxRedirects  = 1
	maxReportSize = 1 << 20
)

// DefaultWeatherURL asks OpenWeatherMap for the current weather in Helsinki.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather?q=Helsinki,fi"

// WeatherURL adds an OpenWeatherMap application id to base.
func WeatherURL(base, appID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse weather url: %w", err)
	}
	if appID != "" {
		q := u.Query()
		q.Set("APPID", appID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Weather reads the outside temperature from an OpenWeatherMap-style current weather report, which gives
// main.temp in Kelvin.
type Weather struct {
	URL    string
	Client *http.Client
}

// NewWeather returns a Weather that fetches u.
func NewWeather(u string) *Weather {
	return &Weather{
		URL: u,
		Client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Read implements Source.
func (w *Weather) Read(ctx context.Context) (Celsius, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", w.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Add("accept", "application/json")
	req.Header.Add("user-agent", "nixie-clock")
	res, err := w.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("make request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return 0, fmt.Errorf("make request: unexpected status %v (%s): (body: %s)", res.StatusCode, res.Status, body)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxReportSize+1))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxReportSize {
		return 0, fmt.Errorf("read response: body exceeds %d bytes", maxReportSize)
	}
	// jsonparser only scans for the key path; a truncated or wrapped body would still yield a value.
	if !json.Valid(body) {
		return 0, fmt.Errorf("parse weather report: %w", ErrInvalidReport)
	}
	kelvin, err := jsonparser.GetFloat(body, "main", "temp")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return 0, fmt.Errorf("parse weather report: main.temp: %w", ErrMissingField)
	} else if err != nil {
		return 0, fmt.Errorf("parse weather report: %w", err)
	}
	return Celsius(kelvin - absoluteZero), nil
}
