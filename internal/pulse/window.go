package pulse

// Window holds the most recent smoothed samples in arrival order. Once full,
// every push evicts exactly the oldest sample.
type Window struct {
	buf   []Sample
	head  int // index of the oldest sample
	count int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Sample, capacity)}
}

// Push adds s to the window. While the window is filling it returns false and
// no detection should run. Once full, the oldest sample is evicted and the
// returned view covers the current contents.
//
// The view shares storage with the window and is only valid until the next
// Push.
func (w *Window) Push(s Sample) (View, bool) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = s
		w.count++
		return View{}, false
	}

	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)

	return View{w: w}, true
}

func (w *Window) Len() int {
	return w.count
}

func (w *Window) Cap() int {
	return len(w.buf)
}

// Full reports whether the window has reached capacity.
func (w *Window) Full() bool {
	return w.count == len(w.buf)
}

// Values returns a copy of the window contents, oldest first.
func (w *Window) Values() []Sample {
	out := make([]Sample, w.count)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

func (w *Window) at(i int) Sample {
	return w.buf[(w.head+i)%len(w.buf)]
}

// View is a read-only, oldest-first view of a full window.
type View struct {
	w *Window
}

// ViewOf wraps a fixed slice of samples as a view. It is meant for evaluating
// the detector against known windows.
func ViewOf(samples ...Sample) View {
	w := NewWindow(len(samples))
	for _, s := range samples {
		w.Push(s)
	}
	return View{w: w}
}

func (v View) Len() int {
	if v.w == nil {
		return 0
	}
	return v.w.count
}

// At returns the i-th sample, 0 being the oldest.
func (v View) At(i int) Sample {
	return v.w.at(i)
}

// Center returns the index of the center sample. For even lengths this is the
// lower of the two middle positions.
func (v View) Center() int {
	return (v.Len() - 1) / 2
}
