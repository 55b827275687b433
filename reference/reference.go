// Package reference computes the dense submanifold convolution that an
// incremental layer must reproduce:
//
//	out[o] = bias + Σ_k W_k · in[o + offset(k)]   if o is active
//	out[o] = 0                                    otherwise
//
// where pixels outside the image read as zero and offset(k) is
// (k/filterSize - pad, k%filterSize - pad) with pad = filterSize/2.
package reference

import (
	"github.com/chewxy/math32"
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// Params are the trained parameters of one layer.
type Params struct {
	FilterSize int
	Bias       []float32     // nOut
	Weights    *dense.Matrix // filterSize² × (nIn·nOut), each row an nOut×nIn block
}

func (p Params) shape() (nIn, nOut int, err error) {
	if p.FilterSize <= 0 || p.Weights == nil {
		return 0, 0, errors.New("parameters need a filter size and weights")
	}
	nOut = len(p.Bias)
	if nOut == 0 {
		return 0, 0, errors.New("parameters need a bias")
	}
	r, c := p.Weights.Shape()
	if r != p.FilterSize*p.FilterSize || c%nOut != 0 {
		return 0, 0, errors.Errorf("weights of %d×%d do not fit filter %d and %d outputs", r, c, p.FilterSize, nOut)
	}
	return c / nOut, nOut, nil
}

func checkInput(input *dense.Matrix, sites site.Map, nIn int) error {
	if input.Cols() != nIn {
		return errors.Errorf("input has %d channels, weights expect %d", input.Cols(), nIn)
	}
	if input.Rows() != sites.Len() || sites.H*sites.W != sites.Len() {
		return errors.Errorf("input has %d pixels, classification is %d×%d", input.Rows(), sites.H, sites.W)
	}
	return nil
}

// Direct computes the convolution with plain loops. input is H·W × nIn.
func Direct(p Params, input *dense.Matrix, sites site.Map) (*dense.Matrix, error) {
	nIn, nOut, err := p.shape()
	if err != nil {
		return nil, err
	}
	if err = checkInput(input, sites, nIn); err != nil {
		return nil, err
	}
	h, w := sites.H, sites.W
	pad := p.FilterSize / 2
	retVal := dense.New(h*w, nOut)
	for o, s := range sites.States {
		if !s.IsActive() {
			continue
		}
		or, oc := o/w, o%w
		dst := retVal.Row(o)
		copy(dst, p.Bias)
		for k := 0; k < p.FilterSize*p.FilterSize; k++ {
			ir, ic := or+k/p.FilterSize-pad, oc+k%p.FilterSize-pad
			if ir < 0 || ir >= h || ic < 0 || ic >= w {
				continue
			}
			block, err := p.Weights.Block(k, nOut, nIn)
			if err != nil {
				return nil, err
			}
			block.MulVecAdd(dst, input.Row(ir*w+ic))
		}
	}
	return retVal, nil
}

// Conv2D computes the same convolution as Direct, but as a Gorgonia expression
// graph: a dense 2D convolution over the whole image, masked by the active sites.
func Conv2D(p Params, input *dense.Matrix, sites site.Map) (retVal *dense.Matrix, err error) {
	nIn, nOut, err := p.shape()
	if err != nil {
		return nil, err
	}
	if err = checkInput(input, sites, nIn); err != nil {
		return nil, err
	}
	h, w := sites.H, sites.W
	fs := p.FilterSize
	pad := fs / 2

	// BCHW image
	im := make([]float32, nIn*h*w)
	for px := 0; px < h*w; px++ {
		for c, v := range input.Row(px) {
			im[c*h*w+px] = v
		}
	}
	// filterCount, channels, kh, kw
	filter := make([]float32, nOut*nIn*fs*fs)
	for k := 0; k < fs*fs; k++ {
		row := p.Weights.Row(k)
		for o := 0; o < nOut; o++ {
			for c := 0; c < nIn; c++ {
				filter[((o*nIn+c)*fs*fs)+k] = row[o*nIn+c]
			}
		}
	}

	g := G.NewGraph()
	x := G.NewTensor(g, G.Float32, 4, G.WithShape(1, nIn, h, w), G.WithName("input"),
		G.WithValue(tensor.New(tensor.WithShape(1, nIn, h, w), tensor.WithBacking(im))))
	f := G.NewTensor(g, G.Float32, 4, G.WithShape(nOut, nIn, fs, fs), G.WithName("filter"),
		G.WithValue(tensor.New(tensor.WithShape(nOut, nIn, fs, fs), tensor.WithBacking(filter))))

	var conv *G.Node
	if conv, err = nnops.Conv2d(x, f, tensor.Shape{fs, fs}, []int{pad, pad}, []int{1, 1}, []int{1, 1}); err != nil {
		return nil, errors.WithStack(err)
	}
	var convVal G.Value
	G.Read(conv, &convVal)

	m := G.NewTapeMachine(g)
	defer m.Close()
	if err = m.RunAll(); err != nil {
		return nil, errors.WithStack(err)
	}

	// even filters produce one extra row and column at the end
	shp := convVal.Shape()
	oh, ow := shp[2], shp[3]
	if oh < h || ow < w {
		return nil, errors.Errorf("convolution of %d×%d produced %d×%d", h, w, oh, ow)
	}
	data, ok := convVal.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("expected float32 output. Got %T", convVal.Data())
	}

	retVal = dense.New(h*w, nOut)
	for px, s := range sites.States {
		if !s.IsActive() {
			continue
		}
		r, c := px/w, px%w
		dst := retVal.Row(px)
		for o := 0; o < nOut; o++ {
			dst[o] = data[o*oh*ow+r*ow+c] + p.Bias[o]
		}
	}
	return retVal, nil
}

// MaxAbsDiff returns the largest element-wise absolute difference between a and
// b, which must have the same shape.
func MaxAbsDiff(a, b *dense.Matrix) (float32, error) {
	ar, ac := a.Shape()
	br, bc := b.Shape()
	if ar != br || ac != bc {
		return 0, errors.Errorf("cannot compare %d×%d with %d×%d", ar, ac, br, bc)
	}
	var max float32
	bd := b.Data()
	for i, v := range a.Data() {
		if d := math32.Abs(v - bd[i]); d > max {
			max = d
		}
	}
	return max, nil
}
