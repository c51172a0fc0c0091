package pulse

// Filter is a moving-average low-pass filter over the last n raw samples.
// Until n samples have been seen it averages over what it has.
type Filter struct {
	buf   []Sample
	idx   int
	count int
	sum   uint64
}

// NewFilter returns a filter averaging over length samples. Lengths below one
// are treated as one, which passes samples through unchanged.
func NewFilter(length int) *Filter {
	if length < 1 {
		length = 1
	}
	return &Filter{buf: make([]Sample, length)}
}

// Apply consumes one raw sample and returns the smoothed value.
func (f *Filter) Apply(raw Sample) Sample {
	if f.count == len(f.buf) {
		f.sum -= uint64(f.buf[f.idx])
	} else {
		f.count++
	}

	f.buf[f.idx] = raw
	f.sum += uint64(raw)
	f.idx = (f.idx + 1) % len(f.buf)

	return Sample(f.sum / uint64(f.count))
}

// Len returns the number of raw samples currently averaged.
func (f *Filter) Len() int {
	return f.count
}
