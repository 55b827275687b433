// Package rulebook builds the per-offset rule lists that drive an incremental
// sparse convolution step.
//
// The Book implements submanifold semantics: a pixel is an active output exactly
// when it is an active input, the stride is 1 and every axis is padded by
// filterSize/2. A rule (i, o) recorded at kernel offset k means input pixel i
// feeds output pixel o through the weights of k, with
//
//	row(i) = row(o) + k/filterSize - pad
//	col(i) = col(o) + k%filterSize - pad
package rulebook

import (
	"sort"

	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
)

// Hints are per-update advisory signals computed by a first-processing layer. The
// i-th entry of each slice describes the i-th update location. Empty hints mean
// the classification handed to Update is already authoritative.
type Hints struct {
	WasInactive []bool // the previous feature vector had zero L1 norm
	BecameZero  []bool // the new feature vector has zero L1 norm
}

// Empty reports whether there are no hints.
func (h Hints) Empty() bool { return len(h.WasInactive) == 0 && len(h.BecameZero) == 0 }

// Book is a reference rule-book builder. It is not safe for concurrent use.
type Book struct {
	h, w       int
	filterSize int
	dimension  int
	pad        int

	initialized bool

	in, out [][]int            // per kernel offset
	seen    []map[int]struct{} // per kernel offset: output pixels already paired
}

// New returns an uninitialized rule book.
func New() *Book { return new(Book) }

// Initialize sizes the book for an H×W image and a filterSize^dimension kernel.
// Calling it again with the same geometry is a no-op.
func (b *Book) Initialize(h, w, filterSize, dimension int) error {
	if dimension != 2 {
		return errors.Errorf("only 2-dimensional rule books are supported. Got %d", dimension)
	}
	if h <= 0 || w <= 0 || filterSize <= 0 {
		return errors.Errorf("invalid geometry %d×%d with filter %d", h, w, filterSize)
	}
	if b.initialized {
		if b.h != h || b.w != w || b.filterSize != filterSize || b.dimension != dimension {
			return errors.Errorf("rule book initialized for %d×%d (filter %d), cannot reuse it for %d×%d (filter %d)",
				b.h, b.w, b.filterSize, h, w, filterSize)
		}
		return nil
	}
	b.h, b.w = h, w
	b.filterSize = filterSize
	b.dimension = dimension
	b.pad = filterSize / 2

	vol := b.volume()
	b.in = make([][]int, vol)
	b.out = make([][]int, vol)
	b.seen = make([]map[int]struct{}, vol)
	for k := range b.seen {
		b.seen[k] = make(map[int]struct{})
	}
	b.initialized = true
	return nil
}

func (b *Book) volume() int {
	vol := 1
	for i := 0; i < b.dimension; i++ {
		vol *= b.filterSize
	}
	return vol
}

func (b *Book) Initialized() bool { return b.initialized }
func (b *Book) Width() int        { return b.w }
func (b *Book) Height() int       { return b.h }
func (b *Book) FilterSize() int   { return b.filterSize }

// Volume is the number of kernel offsets.
func (b *Book) Volume() int { return len(b.in) }

// NRules returns the number of rules recorded at kernel offset k.
func (b *Book) NRules(k int) int { return len(b.in[k]) }

// Rules returns the input and output pixels of the rules at kernel offset k. The
// slices are owned by the book and valid until the next Update.
func (b *Book) Rules(k int) (in, out []int) { return b.in[k], b.out[k] }

// TotalRules is the number of rules across all offsets.
func (b *Book) TotalRules() (n int) {
	for _, in := range b.in {
		n += len(in)
	}
	return n
}

// Reset forgets the geometry and the rules.
func (b *Book) Reset() { *b = Book{} }

func (b *Book) clearRules() {
	for k := range b.in {
		b.in[k] = b.in[k][:0]
		b.out[k] = b.out[k][:0]
		for o := range b.seen[k] {
			delete(b.seen[k], o)
		}
	}
}

// offset returns the displacement of the input pixel relative to the output pixel
// for kernel offset k.
func (b *Book) offset(k int) (dr, dc int) {
	return k/b.filterSize - b.pad, k%b.filterSize - b.pad
}

func (b *Book) add(k, i, o int) bool {
	if _, ok := b.seen[k][o]; ok {
		return false
	}
	b.seen[k][o] = struct{}{}
	b.in[k] = append(b.in[k], i)
	b.out[k] = append(b.out[k], o)
	return true
}

// Update classifies the updated pixels, rebuilds the rules for this step, and
// returns the revised classification together with the pixels whose output
// changed. sites is never modified.
func (b *Book) Update(hints Hints, updates []int, sites site.Map) (site.Map, []int, error) {
	if !b.initialized {
		return site.Map{}, nil, errors.New("rule book is not initialized")
	}
	n := b.h * b.w
	if sites.Len() != n {
		return site.Map{}, nil, errors.Errorf("classification has %d pixels, rule book expects %d×%d", sites.Len(), b.h, b.w)
	}
	if !hints.Empty() && (len(hints.WasInactive) != len(updates) || len(hints.BecameZero) != len(updates)) {
		return site.Map{}, nil, errors.Errorf("got %d/%d hints for %d updates", len(hints.WasInactive), len(hints.BecameZero), len(updates))
	}
	for _, p := range updates {
		if p < 0 || p >= n {
			return site.Map{}, nil, errors.Errorf("update pixel %d outside of %d×%d", p, b.h, b.w)
		}
	}

	retVal := sites.Clone()
	retVal.H, retVal.W = b.h, b.w

	if !hints.Empty() {
		for j, p := range updates {
			retVal.States[p] = transition(hints.WasInactive[j], hints.BecameZero[j])
		}
	}

	b.clearRules()
	uniq := dedup(updates)
	changed := make(map[int]struct{})
	vol := b.Volume()

	// changed inputs feed every active output in their reach
	for _, i := range uniq {
		if retVal.States[i] == site.Inactive {
			continue
		}
		ir, ic := i/b.w, i%b.w
		for k := 0; k < vol; k++ {
			dr, dc := b.offset(k)
			or, oc := ir-dr, ic-dc
			if or < 0 || or >= b.h || oc < 0 || oc >= b.w {
				continue
			}
			o := or*b.w + oc
			if !retVal.States[o].IsActive() {
				continue
			}
			b.add(k, i, o)
			changed[o] = struct{}{}
		}
	}

	// newly active outputs gather their whole receptive field
	for _, o := range uniq {
		if retVal.States[o] != site.NewActive {
			continue
		}
		or, oc := o/b.w, o%b.w
		for k := 0; k < vol; k++ {
			dr, dc := b.offset(k)
			ir, ic := or+dr, oc+dc
			if ir < 0 || ir >= b.h || ic < 0 || ic >= b.w {
				continue
			}
			i := ir*b.w + ic
			if !retVal.States[i].IsActive() {
				continue
			}
			b.add(k, i, o)
		}
		changed[o] = struct{}{}
	}

	for _, p := range uniq {
		if retVal.States[p].IsTransition() {
			changed[p] = struct{}{}
		}
	}

	newUpdates := make([]int, 0, len(changed))
	for p := range changed {
		newUpdates = append(newUpdates, p)
	}
	sort.Ints(newUpdates)
	return retVal, newUpdates, nil
}

func transition(wasInactive, becameZero bool) site.State {
	switch {
	case becameZero && !wasInactive:
		return site.NewInactive
	case becameZero:
		return site.Inactive
	case wasInactive:
		return site.NewActive
	default:
		return site.Active
	}
}

// dedup returns the distinct elements of a in first-seen order.
func dedup(a []int) []int {
	seen := make(map[int]struct{}, len(a))
	retVal := make([]int, 0, len(a))
	for _, v := range a {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		retVal = append(retVal, v)
	}
	return retVal
}
