// Package evconv implements an event-driven sparse convolution layer. Between two
// calls only a few pixels of the input change. The layer keeps the previous input
// and its own output, and it updates the output in time proportional to the number
// of changed pixels.
package evconv

import (
	"bytes"
	"encoding/gob"
	"io"
	"log"

	"github.com/gorgonia/evconv/dense"
	"github.com/pkg/errors"
)

// Layer is one stateful sparse convolution. A Layer must be driven by a single
// caller, one Forward at a time.
type Layer struct {
	Config
	name string

	filterVolume  int
	kernelIndices [][]int // per kernel offset, its grid position along each axis
	padding       []int

	bias    []float32
	weights *dense.Matrix // filterVolume × (NIn·NOut), each row an NOut×NIn block

	maps  maps
	calls int

	observers []Observer
	buf       bytes.Buffer
	logger    *log.Logger
	tr        tracer
}

// Option configures a Layer.
type Option func(l *Layer)

// WithName names the layer in logs and statistics.
func WithName(name string) Option { return func(l *Layer) { l.name = name } }

// WithObserver adds an observer notified at each phase of Forward.
func WithObserver(o Observer) Option {
	return func(l *Layer) { l.observers = append(l.observers, o) }
}

// WithLogging records a line per phase of Forward, readable with ExecLog.
func WithLogging(on bool) Option {
	return func(l *Layer) {
		if on {
			l.logger = log.New(&l.buf, "", 0)
		} else {
			l.logger = nil
		}
	}
}

// New builds a layer with zero weights and bias.
func New(conf Config, opts ...Option) (*Layer, error) {
	if !conf.IsValid() {
		err := ShapeMismatchError{
			What: "layer configuration (dimension, nIn, nOut, filter size)",
			Want: []int{2, atLeastOne(conf.NIn), atLeastOne(conf.NOut), atLeastOne(conf.FilterSize)},
			Got:  []int{conf.Dimension, conf.NIn, conf.NOut, conf.FilterSize},
		}
		return nil, errors.WithStack(err)
	}
	vol := conf.FilterVolume()
	retVal := &Layer{
		Config:        conf,
		name:          "conv",
		filterVolume:  vol,
		kernelIndices: make([][]int, vol),
		padding:       conf.Padding(),
		bias:          make([]float32, conf.NOut),
		weights:       dense.New(vol, conf.NIn*conf.NOut),
		tr:            makeTracer(),
	}
	for k := range retVal.kernelIndices {
		retVal.kernelIndices[k] = []int{k / conf.FilterSize, k % conf.FilterSize}
	}
	for _, opt := range opts {
		opt(retVal)
	}
	if conf.FilterSize%2 == 0 {
		retVal.warnf("layer %q has an even filter size %d, padding %v is asymmetric", retVal.name, conf.FilterSize, retVal.padding)
	}
	return retVal, nil
}

func atLeastOne(a int) int {
	if a < 1 {
		return 1
	}
	return a
}

// warnf writes to the execution log when logging is on, and to the trace.
func (l *Layer) warnf(format string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
	l.tr.log(format, args...)
}

// Name returns the name given with WithName.
func (l *Layer) Name() string { return l.name }

// KernelOffsets returns, for every kernel offset k, the displacement of the
// input pixel from the output pixel along each axis. A rule (i, o) at offset k
// is valid when i - o equals KernelOffsets()[k]. It is exported for rule books
// built outside of package rulebook, which must agree with it.
func (l *Layer) KernelOffsets() [][]int {
	retVal := make([][]int, len(l.kernelIndices))
	for k, idx := range l.kernelIndices {
		retVal[k] = make([]int, len(idx))
		for d, i := range idx {
			retVal[k][d] = i - l.padding[2*d]
		}
	}
	return retVal
}

// SetParameters replaces the bias and weights. weights must have FilterVolume
// rows of NIn·NOut elements, each row read as a row-major NOut×NIn block.
func (l *Layer) SetParameters(bias []float32, weights *dense.Matrix) error {
	if len(bias) != l.NOut {
		return errors.WithStack(ShapeMismatchError{What: "bias", Want: []int{l.NOut}, Got: []int{len(bias)}})
	}
	if weights == nil {
		return errors.WithStack(ShapeMismatchError{What: "weights", Want: []int{l.filterVolume, l.NIn * l.NOut}})
	}
	if r, c := weights.Shape(); r != l.filterVolume || c != l.NIn*l.NOut {
		return errors.WithStack(ShapeMismatchError{What: "weights", Want: []int{l.filterVolume, l.NIn * l.NOut}, Got: []int{r, c}})
	}
	copy(l.bias, bias)
	l.weights = weights.Clone()
	return nil
}

// Parameters returns copies of the bias and weights.
func (l *Layer) Parameters() (bias []float32, weights *dense.Matrix) {
	bias = make([]float32, len(l.bias))
	copy(bias, l.bias)
	return bias, l.weights.Clone()
}

// Reset drops the stored feature maps so the layer can start a new stream,
// possibly of a different size.
func (l *Layer) Reset() {
	l.maps = maps{}
	l.calls = 0
}

// ExecLog returns what was logged since the layer was built. It is empty unless
// the layer was built WithLogging(true).
func (l *Layer) ExecLog() string { return l.buf.String() }

// Trace returns the verbose trace. It is only recorded in builds tagged debug.
func (l *Layer) Trace() string { return l.tr.Log() }

type savedParameters struct {
	Config
	Bias    []float32
	Weights []float32
}

// SaveParameters gob-encodes the configuration and parameters into w.
func (l *Layer) SaveParameters(w io.Writer) error {
	enc := gob.NewEncoder(w)
	return errors.WithStack(enc.Encode(savedParameters{
		Config:  l.Config,
		Bias:    l.bias,
		Weights: l.weights.Data(),
	}))
}

// LoadParameters reads parameters written by SaveParameters. The saved layer must
// have the same geometry as l.
func (l *Layer) LoadParameters(r io.Reader) error {
	var saved savedParameters
	if err := gob.NewDecoder(r).Decode(&saved); err != nil {
		return errors.WithStack(err)
	}
	want := []int{l.Dimension, l.NIn, l.NOut, l.FilterSize}
	got := []int{saved.Dimension, saved.NIn, saved.NOut, saved.FilterSize}
	for i := range want {
		if want[i] != got[i] {
			return errors.WithStack(ShapeMismatchError{What: "saved layer (dimension, nIn, nOut, filter size)", Want: want, Got: got})
		}
	}
	weights, err := dense.FromBacking(l.filterVolume, l.NIn*l.NOut, saved.Weights)
	if err != nil {
		return errors.WithMessage(err, "saved weights")
	}
	return l.SetParameters(saved.Bias, weights)
}
