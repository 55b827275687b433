package evconv

import (
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/rulebook"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// RuleBook decides, for every kernel offset, which input pixel feeds which output
// pixel during one update, and how the activity of updated pixels changes.
//
// For one Update the rules must cover exactly the (input, output) pairs whose
// contribution changed, and each pair must appear at most once. *rulebook.Book is
// the reference implementation.
type RuleBook interface {
	// Initialize sizes the book. Only first-processing layers call it.
	Initialize(h, w, filterSize, dimension int) error

	// Update returns the revised classification and the pixels whose output
	// changed. The incoming classification is not modified.
	Update(hints rulebook.Hints, updates []int, sites site.Map) (site.Map, []int, error)

	NRules(k int) int
	Rules(k int) (in, out []int)

	// Width is the image width used to linearize coordinates.
	Width() int
}

// Step is the result of one Forward call.
type Step struct {
	// Updates are the pixels the next layer must treat as its update locations.
	Updates []site.Coord

	// Output is the H×W×NOut output map. It shares storage with the layer's
	// persisted output and must be treated as read-only. The layer never writes
	// to it again; the next Forward works on a copy.
	Output *tensor.Dense

	// Sites is the revised classification, transitions included.
	Sites site.Map

	Book RuleBook
}

// Forward applies the changes named by updates. fm is the complete current input,
// of shape H×W×NIn or H×(W·NIn), with dtype float32.
//
// A first-processing layer derives the classification from fm and updates and
// ignores sites. Any other layer uses sites as handed over by the previous layer.
// An empty updates performs no accumulation.
//
// All validation happens before any state is changed; a failed call leaves the
// layer as it was.
func (l *Layer) Forward(updates []site.Coord, fm *tensor.Dense, sites site.Map, book RuleBook) (Step, error) {
	if book == nil {
		return Step{}, errors.New("Forward requires a rule book")
	}
	input, h, w, err := l.inputMatrix(fm)
	if err != nil {
		return Step{}, err
	}
	if err = l.maps.check(h, w); err != nil {
		return Step{}, errors.WithStack(err)
	}
	for _, c := range updates {
		if !c.In(h, w) {
			return Step{}, errors.WithStack(IndexOutOfRangeError{Coord: c, H: h, W: w})
		}
	}

	if l.FirstLayer {
		if err = book.Initialize(h, w, l.FilterSize, l.Dimension); err != nil {
			return Step{}, errors.WithMessage(err, "unable to initialize rule book")
		}
	} else {
		if sites.Len() != h*w {
			return Step{}, errors.WithStack(ShapeMismatchError{What: "classification", Want: []int{h, w}, Got: []int{sites.H, sites.W}})
		}
	}
	if book.Width() != w {
		return Step{}, errors.WithStack(ShapeMismatchError{What: "rule book width", Want: []int{w}, Got: []int{book.Width()}})
	}

	noUpdates := len(updates) == 0
	if noUpdates {
		updates = []site.Coord{{Row: 0, Col: 0}}
	}
	linear := site.Linearize(updates, w)

	fresh := !l.maps.allocated
	if err = l.maps.ensure(h, w, l.NIn, l.NOut); err != nil {
		return Step{}, errors.WithStack(err)
	}
	if l.FirstLayer {
		sites = initClassification(input, linear, h, w)
	} else {
		sites.H, sites.W = h, w
	}

	newUpdates, out, newSites, err := l.update(linear, input, sites, book, noUpdates)
	if err != nil {
		if fresh {
			l.maps = maps{}
		}
		return Step{}, err
	}

	output, err := out.Tensor(h, w, l.NOut)
	if err != nil {
		return Step{}, errors.WithStack(err)
	}
	newSites.H, newSites.W = h, w
	return Step{
		Updates: site.Delinearize(newUpdates, w),
		Output:  output,
		Sites:   newSites,
		Book:    book,
	}, nil
}

// inputMatrix views fm as an H·W × NIn matrix.
func (l *Layer) inputMatrix(fm *tensor.Dense) (m *dense.Matrix, h, w int, err error) {
	if fm == nil {
		return nil, 0, 0, errors.WithStack(ShapeMismatchError{What: "feature map", Want: []int{-1, -1, l.NIn}})
	}
	shp := fm.Shape()
	if len(shp) == 0 || shp[0] == 0 {
		return nil, 0, 0, errors.WithStack(ShapeMismatchError{What: "feature map", Want: []int{-1, -1, l.NIn}, Got: []int(shp.Clone())})
	}
	h = shp[0]
	total := shp.TotalSize()
	if total == 0 || total%(h*l.NIn) != 0 {
		return nil, 0, 0, errors.WithStack(ShapeMismatchError{What: "feature map", Want: []int{h, -1, l.NIn}, Got: []int(shp.Clone())})
	}
	w = total / (h * l.NIn)
	if m, err = dense.FromTensor(fm, l.NIn); err != nil {
		return nil, 0, 0, errors.WithMessage(ShapeMismatchError{What: "feature map", Want: []int{h, w, l.NIn}, Got: []int(shp.Clone())}, err.Error())
	}
	return m, h, w, nil
}
