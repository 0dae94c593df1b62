package backlight

import (
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

type fakeDevice struct {
	writes [][]byte
	err    error
	halted bool
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeDevice) Halt() error {
	f.halted = true
	return nil
}

func TestChannelEncoder(t *testing.T) {
	testData := []struct {
		order string
		want  []byte
	}{
		{"RGB", []byte{0x11, 0x22, 0x33, 0x00, 0x00, 0x04}},
		{"GRB", []byte{0x22, 0x11, 0x33, 0x00, 0x00, 0x04}},
		{"gbr", []byte{0x22, 0x33, 0x11, 0x00, 0x04, 0x00}},
	}
	for _, test := range testData {
		t.Run(test.order, func(t *testing.T) {
			encode, err := channelEncoder(test.order)
			if err != nil {
				t.Fatalf("channel encoder: %v", err)
			}
			if got, want := encode([]Color{0x112233, 0x000004}), test.want; !reflect.DeepEqual(got, want) {
				t.Errorf("encoded pixels:\n  got: %x\n want: %x", got, want)
			}
		})
	}

	for _, bad := range []string{"", "RG", "RRB", "RGBW", "XYZ"} {
		if _, err := channelEncoder(bad); err == nil {
			t.Errorf("channel order %q: expected error", bad)
		}
	}
}

func TestRender(t *testing.T) {
	dev := new(fakeDevice)
	encode, _ := channelEncoder("RGB")
	s := newStrip(dev, encode, 3)

	s.SetPixel(0, 0x010203)
	s.SetPixel(2, 0x040506)
	s.SetPixel(3, 0xffffff) // ignored
	s.SetPixel(-1, 0xffffff)
	if got, want := len(dev.writes), 0; got != want {
		t.Fatalf("writes before render:\n  got: %v\n want: %v", got, want)
	}
	if err := s.Render(); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got, want := dev.writes[0], []byte{1, 2, 3, 0, 0, 0, 4, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("rendered frame:\n  got: %x\n want: %x", got, want)
	}
	if got, want := s.Shown(), []Color{0x010203, 0, 0x040506}; !reflect.DeepEqual(got, want) {
		t.Errorf("shown frame:\n  got: %v\n want: %v", got, want)
	}

	if err := s.Blank(); err != nil {
		t.Fatalf("blank: %v", err)
	}
	if got, want := dev.writes[1], make([]byte, 9); !reflect.DeepEqual(got, want) {
		t.Errorf("blank frame:\n  got: %x\n want: %x", got, want)
	}
	if err := s.Halt(); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if !dev.halted {
		t.Error("device not halted")
	}
}

func TestRenderError(t *testing.T) {
	boom := errors.New("dma timeout")
	encode, _ := channelEncoder("RGB")
	s := newStrip(&fakeDevice{err: boom}, encode, DefaultLength)
	s.Fill(Warm)
	err := s.Render()
	if !errors.Is(err, boom) {
		t.Errorf("render error:\n  got: %v\n want: %v", err, boom)
	}
	// The frame still counts as shown so the preview reflects what the loop asked for.
	if got, want := s.Shown()[0], Warm; got != want {
		t.Errorf("shown after failed render:\n  got: %v\n want: %v", got, want)
	}
}

func TestTemperatureColorsDiffer(t *testing.T) {
	if Warm == Frost {
		t.Error("warm and frost backlight colors are the same")
	}
	for _, c := range Palette {
		if c == Frost {
			t.Errorf("palette contains the frost color %06x", uint32(c))
		}
	}
}

func TestHeadlessPreview(t *testing.T) {
	s := NewHeadless(DefaultLength)
	s.Fill(Frost)
	if err := s.Render(); err != nil {
		t.Fatalf("render headless: %v", err)
	}
	if err := s.Halt(); err != nil {
		t.Fatalf("halt headless: %v", err)
	}

	req := httptest.NewRequest("GET", "/backlight.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Errorf("preview response code:\n  got: %v\n want: %v", got, want)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode preview png: %v", err)
	}
	if got, want := img.Bounds().Dx(), DefaultLength*previewScale; got != want {
		t.Errorf("preview width:\n  got: %v\n want: %v", got, want)
	}
}

func TestBrighten(t *testing.T) {
	if got, want := brighten(0x000104), brighten(0x000410); got != want {
		t.Errorf("brighten keeps hue:\n  got: %v\n want: %v", got, want)
	}
	if got, want := brighten(0).A, uint8(0xff); got != want {
		t.Errorf("brighten black alpha:\n  got: %v\n want: %v", got, want)
	}
}
