package evconv

import (
	"fmt"

	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Network runs a stack of layers over one event stream. The first layer consumes
// the raw input, and each following layer consumes the previous layer's Step.
// All layers share one rule book, so they must agree on the filter size.
type Network struct {
	Layers []*Layer
	Book   RuleBook
}

// NewNetwork checks that the layers can be chained.
func NewNetwork(book RuleBook, layers ...*Layer) (*Network, error) {
	if book == nil {
		return nil, errors.New("a network needs a rule book")
	}
	if len(layers) == 0 {
		return nil, errors.New("a network needs at least one layer")
	}
	if !layers[0].FirstLayer {
		return nil, errors.Errorf("layer %q must be a first layer", layers[0].name)
	}
	for i := 1; i < len(layers); i++ {
		prev, l := layers[i-1], layers[i]
		if l.FirstLayer {
			return nil, errors.Errorf("layer %q (%d) cannot be a first layer", l.name, i)
		}
		if l.NIn != prev.NOut {
			return nil, errors.WithStack(ShapeMismatchError{What: fmt.Sprintf("channels into layer %d", i), Want: []int{prev.NOut}, Got: []int{l.NIn}})
		}
		if l.FilterSize != layers[0].FilterSize {
			return nil, errors.WithStack(ShapeMismatchError{What: fmt.Sprintf("filter size of layer %d", i), Want: []int{layers[0].FilterSize}, Got: []int{l.FilterSize}})
		}
	}
	return &Network{Layers: layers, Book: book}, nil
}

// Forward pushes one set of changes through every layer and returns each layer's
// step. The last step holds the network output.
func (n *Network) Forward(updates []site.Coord, fm *tensor.Dense) ([]Step, error) {
	steps := make([]Step, 0, len(n.Layers))
	var sites site.Map
	for i, l := range n.Layers {
		step, err := l.Forward(updates, fm, sites, n.Book)
		if err != nil {
			return steps, errors.WithMessage(err, fmt.Sprintf("layer %d (%s)", i, l.name))
		}
		steps = append(steps, step)
		updates, fm, sites = step.Updates, step.Output, step.Sites
	}
	return steps, nil
}

// Reset resets every layer so a new stream can start.
func (n *Network) Reset() {
	for _, l := range n.Layers {
		l.Reset()
	}
}
