package gpu

import (
	"reflect"
	"testing"
)

type named struct {
	name string
	log  *[]string
}

func (n named) Destroy() { *n.log = append(*n.log, n.name) }

func TestArenaReleasesLIFO(t *testing.T) {
	var log []string
	var a Arena
	a.Track(named{"device", &log})
	a.Track(named{"pool", &log})
	a.Defer(func() { log = append(log, "func") })
	a.Track(nil)
	a.Track(named{"fence", &log})

	if a.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", a.Len())
	}

	a.Release()
	want := []string{"fence", "func", "pool", "device"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("release order %v, want %v", log, want)
	}
	if a.Len() != 0 {
		t.Errorf("arena not empty after release")
	}

	a.Release()
	if len(log) != len(want) {
		t.Errorf("second release destroyed again: %v", log)
	}
}

func TestReleaseInOrder(t *testing.T) {
	var log []string
	fbs := []named{{"fb0", &log}, {"fb1", &log}}
	views := []named{{"view0", &log}, {"view1", &log}}

	ReleaseInOrder(Releasers(fbs), Releasers(views), []Releaser{named{"swapchain", &log}})

	want := []string{"fb0", "fb1", "view0", "view1", "swapchain"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("got %v, want %v", log, want)
	}
}
