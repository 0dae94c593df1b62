package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrockway/nixie-clock/control/backlight"
	"github.com/jrockway/nixie-clock/control/pins"
	"github.com/jrockway/nixie-clock/control/tubes"
	"golang.org/x/sync/errgroup"
	"gotest.tools/assert"
)

func TestDebugRoutes(t *testing.T) {
	srv := newDebugServer("", tubes.NewPreview(pins.Discard{}), backlight.NewHeadless(backlight.DefaultLength))
	testData := []struct {
		path string
		want int
	}{
		{"/", http.StatusFound},
		{"/tubes.png", http.StatusOK},
		{"/backlight.png", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, test := range testData {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", test.path, nil))
		if got, want := rec.Code, test.want; got != want {
			t.Errorf("GET %s:\n  got: %v\n want: %v", test.path, got, want)
		}
	}
}

func TestDebugServerBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer l.Close()

	g, gctx := errgroup.WithContext(context.Background())
	srv := newDebugServer(l.Addr().String(), tubes.NewPreview(pins.Discard{}), backlight.NewHeadless(1))
	done := make(chan error, 1)
	g.Go(func() error {
		err := serveDebug(gctx, srv)
		done <- err
		return err
	})
	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("debug server with a taken address did not return")
	}
	if err := gctx.Err(); err != nil {
		t.Errorf("a debug server that cannot listen cancelled the group: %v", err)
	}
	assert.NilError(t, g.Wait())
}

func TestDebugServerShutdown(t *testing.T) {
	srv := newDebugServer("127.0.0.1:0", tubes.NewPreview(pins.Discard{}), backlight.NewHeadless(1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveDebug(ctx, srv) }()
	cancel()
	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("debug server did not stop after cancel")
	}
}
