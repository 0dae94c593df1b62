package thermometer

import (
	"context"
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"
)

type fakeSenser struct {
	t   physic.Temperature
	err error
}

func (f *fakeSenser) Sense(e *physic.Env) error {
	e.Temperature = f.t
	return f.err
}

func TestEnv(t *testing.T) {
	testData := []struct {
		name string
		in   physic.Temperature
		want int
	}{
		{"freezing", physic.ZeroCelsius, 0},
		{"room", physic.ZeroCelsius + 21500*physic.MilliKelvin, 21},
		{"frost", physic.ZeroCelsius - 4200*physic.MilliKelvin, -4},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			e := &Env{dev: &fakeSenser{t: test.in}}
			got, err := e.Read(context.Background())
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got := got.Whole(); got != test.want {
				t.Errorf("temperature:\n  got: %v\n want: %v", got, test.want)
			}
		})
	}

	sensorErr := errors.New("i2c: nack")
	e := &Env{dev: &fakeSenser{err: sensorErr}}
	if _, err := e.Read(context.Background()); !errors.Is(err, sensorErr) {
		t.Errorf("read with a broken sensor:\n  got: %v\n want: %v", err, sensorErr)
	}
}
