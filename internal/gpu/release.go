package gpu

// Arena ties the lifetime of a group of handles to one owner. Handles are
// destroyed in reverse order of Track.
type Arena struct {
	stack []Releaser
}

func (a *Arena) Track(r Releaser) {
	if r != nil {
		a.stack = append(a.stack, r)
	}
}

// Defer registers a cleanup function that runs at its place in the LIFO order.
func (a *Arena) Defer(fn func()) {
	a.Track(ReleaseFunc(fn))
}

func (a *Arena) Len() int {
	return len(a.stack)
}

// Release destroys everything tracked so far, newest first. The arena can be
// reused afterwards.
func (a *Arena) Release() {
	for i := len(a.stack) - 1; i >= 0; i-- {
		a.stack[i].Destroy()
		a.stack[i] = nil
	}
	a.stack = a.stack[:0]
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func()

func (f ReleaseFunc) Destroy() {
	f()
}

// ReleaseInOrder destroys the groups first to last. Use it where destruction
// follows a dependency chain, e.g. framebuffers before the views they
// reference before the swapchain that owns the images.
func ReleaseInOrder(groups ...[]Releaser) {
	for _, group := range groups {
		for _, r := range group {
			if r != nil {
				r.Destroy()
			}
		}
	}
}

// Releasers converts a typed handle slice for ReleaseInOrder.
func Releasers[T Releaser](handles []T) []Releaser {
	out := make([]Releaser, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
	}
	return out
}
