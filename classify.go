package evconv

import (
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/site"
)

// initClassification marks Active every pixel with a nonzero feature vector and
// every pixel that was explicitly updated, and Inactive everything else.
func initClassification(fm *dense.Matrix, updates []int, h, w int) site.Map {
	retVal := site.MakeMap(h, w)
	for i := 0; i < fm.Rows(); i++ {
		if fm.L1(i) > 0 {
			retVal.States[i] = site.Active
		}
	}
	for _, p := range updates {
		retVal.States[p] = site.Active
	}
	return retVal
}
