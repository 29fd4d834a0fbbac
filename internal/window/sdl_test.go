package window

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	size := func(w, h int) func() (int, int) {
		return func() (int, int) { return w, h }
	}

	tests := []struct {
		name     string
		event    sdl.Event
		drawable func() (int, int)
		want     Event
		ok       bool
	}{
		{"quit", &sdl.QuitEvent{}, size(1, 1), Event{Kind: Close}, true},
		{"window close", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_CLOSE}, size(1, 1), Event{Kind: Close}, true},
		{"minimized", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED}, size(0, 0), Event{Kind: Minimized}, true},
		{"restored", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED}, size(800, 600), Event{Kind: Restored, Width: 800, Height: 600}, true},
		{"resized uses drawable size", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED, Data1: 400, Data2: 300}, size(800, 600), Event{Kind: Resized, Width: 800, Height: 600}, true},
		{"size changed", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED}, size(1024, 768), Event{Kind: Resized, Width: 1024, Height: 768}, true},
		{"resized to nothing", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED}, size(0, 600), Event{Kind: Minimized}, true},
		{"ignored window event", &sdl.WindowEvent{Event: sdl.WINDOWEVENT_ENTER}, size(1, 1), Event{}, false},
		{"ignored event", &sdl.KeyboardEvent{}, size(1, 1), Event{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translate(tc.event, tc.drawable)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("translate = %+v, %v; want %+v, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestEventKindString(t *testing.T) {
	for kind, want := range map[EventKind]string{Close: "close", Resized: "resized", Minimized: "minimized", Restored: "restored", 42: "unknown"} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
