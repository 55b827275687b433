// Package site holds the per-pixel activity classification shared between a
// layer and its rule book.
package site

import (
	"bytes"
	"fmt"
)

// State is the activity state of one pixel.
type State int32

const (
	Inactive State = iota
	Active
	NewActive   // became active during the current update
	NewInactive // became inactive during the current update
)

// IsActive reports whether a pixel in this state contributes to the next layer.
func (s State) IsActive() bool { return s == Active || s == NewActive }

// IsTransition reports whether the state is only valid for the current update.
func (s State) IsTransition() bool { return s == NewActive || s == NewInactive }

// Steady returns the state a transition settles into once the update is over.
func (s State) Steady() State {
	switch s {
	case NewActive:
		return Active
	case NewInactive:
		return Inactive
	}
	return s
}

func (s State) Format(f fmt.State, c rune) {
	switch c {
	case 'v': // used in debug
		switch s {
		case Inactive:
			fmt.Fprint(f, "Inactive")
		case Active:
			fmt.Fprint(f, "Active")
		case NewActive:
			fmt.Fprint(f, "NewActive")
		case NewInactive:
			fmt.Fprint(f, "NewInactive")
		default:
			fmt.Fprintf(f, "State(%d)", int32(s))
		}
	case 's': // used in grids
		switch s {
		case Inactive:
			fmt.Fprint(f, "·")
		case Active:
			fmt.Fprint(f, "o")
		case NewActive:
			fmt.Fprint(f, "+")
		case NewInactive:
			fmt.Fprint(f, "-")
		default:
			fmt.Fprint(f, "?")
		}
	}
}

// Coord is a (row, col) pixel coordinate.
type Coord struct {
	Row, Col int
}

// Linear returns the row-major index of c in an image of width w.
func (c Coord) Linear(w int) int { return c.Row*w + c.Col }

// In reports whether c lies within [0,h) × [0,w).
func (c Coord) In(h, w int) bool { return c.Row >= 0 && c.Row < h && c.Col >= 0 && c.Col < w }

func (c Coord) Format(f fmt.State, r rune) { fmt.Fprintf(f, "(%d,%d)", c.Row, c.Col) }

// FromLinear is the inverse of Coord.Linear.
func FromLinear(idx, w int) Coord { return Coord{Row: idx / w, Col: idx % w} }

// Linearize converts coordinates into pixel indices for an image of width w.
func Linearize(cs []Coord, w int) []int {
	retVal := make([]int, len(cs))
	for i, c := range cs {
		retVal[i] = c.Linear(w)
	}
	return retVal
}

// Delinearize converts pixel indices back into coordinates.
func Delinearize(idx []int, w int) []Coord {
	retVal := make([]Coord, len(idx))
	for i, p := range idx {
		retVal[i] = FromLinear(p, w)
	}
	return retVal
}

// Map is a dense classification of an H×W image, stored row-major.
type Map struct {
	H, W   int
	States []State
}

// MakeMap returns a map with every pixel Inactive.
func MakeMap(h, w int) Map {
	return Map{
		H:      h,
		W:      w,
		States: make([]State, h*w),
	}
}

// Len is the number of pixels.
func (m Map) Len() int { return len(m.States) }

// IsZero reports whether the map carries no classification at all.
func (m Map) IsZero() bool { return len(m.States) == 0 }

// At returns the state of pixel (r, c).
func (m Map) At(r, c int) State { return m.States[r*m.W+c] }

// Clone returns a deep copy.
func (m Map) Clone() Map {
	retVal := Map{H: m.H, W: m.W, States: make([]State, len(m.States))}
	copy(retVal.States, m.States)
	return retVal
}

// Grid returns an H×W view sharing the backing storage.
func (m Map) Grid() [][]State {
	retVal := make([][]State, m.H)
	for r := range retVal {
		retVal[r] = m.States[r*m.W : (r+1)*m.W : (r+1)*m.W]
	}
	return retVal
}

// Count returns how many pixels are in state s.
func (m Map) Count(s State) (n int) {
	for _, st := range m.States {
		if st == s {
			n++
		}
	}
	return n
}

// Indices returns the ascending pixel indices whose state is s.
func (m Map) Indices(s State) []int {
	var retVal []int
	for i, st := range m.States {
		if st == s {
			retVal = append(retVal, i)
		}
	}
	return retVal
}

func (m Map) Format(f fmt.State, c rune) {
	var buf bytes.Buffer
	for _, row := range m.Grid() {
		fmt.Fprint(&buf, "⎢ ")
		for _, s := range row {
			fmt.Fprintf(&buf, "%s ", s)
		}
		fmt.Fprint(&buf, "⎥\n")
	}
	f.Write(buf.Bytes())
}
