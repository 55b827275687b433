// Command evcheck drives one layer with a random flickering stream and compares
// every step against the dense reference convolution.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"

	"github.com/gorgonia/evconv"
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/reference"
	"github.com/gorgonia/evconv/rulebook"
	"github.com/gorgonia/evconv/site"
	"github.com/klauspost/cpuid/v2"
	"gorgonia.org/tensor"
)

var (
	height     = flag.Int("height", 16, "image height")
	width      = flag.Int("width", 16, "image width")
	nIn        = flag.Int("nin", 2, "input channels")
	nOut       = flag.Int("nout", 4, "output channels")
	filterSize = flag.Int("filter", 3, "filter size")
	frames     = flag.Int("frames", 50, "number of frames")
	flicker    = flag.Int("flicker", 8, "maximum pixels changed per frame")
	seed       = flag.Int64("seed", 1337, "random seed")
	tol        = flag.Float64("tol", 1e-4, "largest tolerated absolute difference")
	params     = flag.String("params", "", "gob parameter file written by SaveParameters")
	graph      = flag.Bool("graph", false, "also check the last frame with the Gorgonia graph")
)

type checker struct {
	r   *rand.Rand
	cur []float32

	layer  *evconv.Layer
	book   *rulebook.Book
	params reference.Params
	stats  *evconv.Statistics
}

func (c *checker) next() *tensor.Dense {
	h, w, nIn := *height, *width, c.layer.NIn
	next := make([]float32, len(c.cur))
	copy(next, c.cur)
	n := 1 + c.r.Intn(*flicker)
	for i := 0; i < n; i++ {
		px := c.r.Intn(h * w)
		v := next[px*nIn : (px+1)*nIn]
		off := c.r.Intn(3) == 0
		for j := range v {
			v[j] = 0
			if !off {
				v[j] = c.r.Float32()*2 - 1
			}
		}
	}
	c.cur = next
	return tensor.New(tensor.WithShape(h, w, nIn), tensor.WithBacking(next))
}

func activeSites(m *dense.Matrix, h, w int) site.Map {
	retVal := site.MakeMap(h, w)
	for i := range retVal.States {
		if m.L1(i) > 0 {
			retVal.States[i] = site.Active
		}
	}
	return retVal
}

// cpuReport names the host CPU and its vector extensions.
func cpuReport() string {
	var ext []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{{cpuid.SSE2, "SSE2"}, {cpuid.AVX, "AVX"}, {cpuid.AVX2, "AVX2"}, {cpuid.FMA3, "FMA3"}, {cpuid.AVX512F, "AVX512F"}, {cpuid.ASIMD, "ASIMD"}} {
		if cpuid.CPU.Supports(f.id) {
			ext = append(ext, f.name)
		}
	}
	if len(ext) == 0 {
		ext = append(ext, "no vector extensions")
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = "unknown CPU"
	}
	return fmt.Sprintf("%s (%d cores; %s)", brand, cpuid.CPU.PhysicalCores, strings.Join(ext, " "))
}

// step runs one frame and returns the largest difference to the reference.
func (c *checker) step(prev, next *tensor.Dense, withGraph bool) (float32, error) {
	updates, err := evconv.Diff(prev, next, c.layer.NIn)
	if err != nil {
		return 0, err
	}
	step, err := c.layer.Forward(updates, next, site.Map{}, c.book)
	if err != nil {
		return 0, err
	}
	input, err := dense.FromTensor(next, c.layer.NIn)
	if err != nil {
		return 0, err
	}
	sites := activeSites(input, *height, *width)
	ref := reference.Direct
	if withGraph {
		ref = reference.Conv2D
	}
	want, err := ref(c.params, input, sites)
	if err != nil {
		return 0, err
	}
	got, err := dense.FromTensor(step.Output, c.layer.NOut)
	if err != nil {
		return 0, err
	}
	return reference.MaxAbsDiff(want, got)
}

func main() {
	flag.Parse()

	conf := evconv.DefaultConf(*nIn, *nOut)
	conf.FilterSize = *filterSize
	conf.FirstLayer = true
	stats := evconv.MakeStatistics()
	layer, err := evconv.New(conf, evconv.WithName("checked"), evconv.WithObserver(stats))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	r := rand.New(rand.NewSource(*seed))
	if *params != "" {
		f, err := os.Open(*params)
		if err != nil {
			log.Fatal(err)
		}
		err = layer.LoadParameters(f)
		f.Close()
		if err != nil {
			log.Fatalf("%+v", err)
		}
	} else {
		weights := dense.New(conf.FilterVolume(), conf.NIn*conf.NOut)
		for i := range weights.Data() {
			weights.Data()[i] = r.Float32()*2 - 1
		}
		bias := make([]float32, conf.NOut)
		for i := range bias {
			bias[i] = r.Float32()*2 - 1
		}
		if err = layer.SetParameters(bias, weights); err != nil {
			log.Fatalf("%+v", err)
		}
	}
	bias, weights := layer.Parameters()

	c := &checker{
		r:      r,
		cur:    make([]float32, (*height)*(*width)*conf.NIn),
		layer:  layer,
		book:   rulebook.New(),
		params: reference.Params{FilterSize: conf.FilterSize, Bias: bias, Weights: weights},
		stats:  stats,
	}

	host := cpuReport()
	var prev *tensor.Dense
	var worst float32
	failed := 0
	for i := 0; i < *frames; i++ {
		next := c.next()
		diff, err := c.step(prev, next, *graph && i == *frames-1)
		if err != nil {
			log.Fatalf("frame %d: %+v", i, err)
		}
		if diff > worst {
			worst = diff
		}
		if float64(diff) > *tol {
			failed++
			log.Printf("frame %d differs by %v on %s", i, diff, host)
		}
		prev = next
	}

	fmt.Printf("%d frames, %d rules, largest difference %v\n", *frames, stats.TotalRules(layer.Name()), worst)
	if failed > 0 {
		fmt.Printf("%d frames exceeded %v on %s\n", failed, *tol, host)
		os.Exit(1)
	}
}
