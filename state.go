package evconv

import (
	"github.com/gorgonia/evconv/dense"
)

// maps holds the previous input and the persisted output of a layer. It moves once
// from unallocated to allocated, sized by the first image it sees.
type maps struct {
	allocated bool
	h, w      int

	previous *dense.Matrix // h·w × NIn
	output   *dense.Matrix // h·w × NOut
}

// check reports whether an h×w image can be processed without allocating.
func (m *maps) check(h, w int) error {
	if m.allocated && (m.h != h || m.w != w) {
		return UnsupportedResizeError{H: m.h, W: m.w, GotH: h, GotW: w}
	}
	return nil
}

// ensure allocates zeroed maps on first use. Later calls with the same size are
// no-ops.
func (m *maps) ensure(h, w, nIn, nOut int) error {
	if err := m.check(h, w); err != nil {
		return err
	}
	if m.allocated {
		return nil
	}
	m.h, m.w = h, w
	m.previous = dense.New(h*w, nIn)
	m.output = dense.New(h*w, nOut)
	m.allocated = true
	return nil
}
