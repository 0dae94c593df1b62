package thermometer

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280Address is the sensor's I2C address with SDO pulled high.
const BME280Address = 0x77

type senser interface {
	Sense(e *physic.Env) error
}

// Env reads the temperature from an environmental sensor, as an alternative to the 1-Wire probe.
type Env struct {
	dev senser
}

// NewBME280 returns an Env reading a BME280 (or BMP280) on the given bus.
func NewBME280(b i2c.Bus, addr uint16) (*Env, error) {
	dev, err := bmxx80.NewI2C(b, addr, &bmxx80.Opts{Temperature: bmxx80.O16x})
	if err != nil {
		return nil, fmt.Errorf("init bme280: %w", err)
	}
	return &Env{dev: dev}, nil
}

// Read implements Source.
func (e *Env) Read(ctx context.Context) (Celsius, error) {
	var env physic.Env
	if err := e.dev.Sense(&env); err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	// Temperature is in nanokelvin.
	return Celsius(float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius)), nil
}
