package evconv

import (
	"fmt"

	"github.com/gorgonia/evconv/site"
)

// ShapeMismatchError is returned when parameters or feature maps do not agree with
// the layer configuration.
type ShapeMismatchError struct {
	What      string
	Want, Got []int
}

func (err ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: expected %v. Got %v", err.What, err.Want, err.Got)
}

// IndexOutOfRangeError is returned when an update location lies outside the image.
type IndexOutOfRangeError struct {
	Coord site.Coord
	H, W  int
}

func (err IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("update location %v outside of %d×%d", err.Coord, err.H, err.W)
}

// UnsupportedResizeError is returned when a layer that already holds state for one
// image size is asked to process another.
type UnsupportedResizeError struct {
	H, W       int // size the layer was allocated for
	GotH, GotW int
}

func (err UnsupportedResizeError) Error() string {
	return fmt.Sprintf("layer allocated for %d×%d cannot process %d×%d", err.H, err.W, err.GotH, err.GotW)
}
