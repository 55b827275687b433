package evconv

import (
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Diff lists, in row-major order, the pixels whose nIn-channel feature vectors
// differ between two frames of the same shape. A nil prev is an all-zero frame.
func Diff(prev, next *tensor.Dense, nIn int) ([]site.Coord, error) {
	if next == nil || next.Shape().Dims() == 0 || next.Shape()[0] == 0 {
		return nil, errors.New("Diff requires a next frame")
	}
	h := next.Shape()[0]
	n, err := dense.FromTensor(next, nIn)
	if err != nil {
		return nil, errors.WithMessage(err, "next frame")
	}
	w := n.Rows() / h
	if h*w != n.Rows() {
		return nil, errors.WithStack(ShapeMismatchError{What: "frame", Want: []int{h, -1, nIn}, Got: []int(next.Shape().Clone())})
	}

	p := dense.New(n.Rows(), nIn)
	if prev != nil {
		if !prev.Shape().Eq(next.Shape()) {
			return nil, errors.WithStack(ShapeMismatchError{What: "previous frame", Want: []int(next.Shape().Clone()), Got: []int(prev.Shape().Clone())})
		}
		if p, err = dense.FromTensor(prev, nIn); err != nil {
			return nil, errors.WithMessage(err, "previous frame")
		}
	}

	pr, nr := p.Iterator(), n.Iterator()
	defer dense.ReturnIterator(p.Rows(), nIn, pr)
	defer dense.ReturnIterator(n.Rows(), nIn, nr)

	var retVal []site.Coord
	for i, b := range nr {
		a := pr[i]
		for j := range a {
			if a[j] != b[j] {
				retVal = append(retVal, site.FromLinear(i, w))
				break
			}
		}
	}
	return retVal, nil
}
