package main

import (
	"math/rand"

	"gorgonia.org/tensor"
)

type dot struct{ r, c, dr, dc int }

// source emits the frames of a sensor watched by a few moving dots. A pixel fires
// when a dot passes over it and fades to zero over ttl frames.
type source struct {
	h, w, ttl int
	rand      *rand.Rand
	dots      []dot
	age       []int
}

func newSource(h, w, ttl, dots int, seed int64) *source {
	s := &source{
		h:    h,
		w:    w,
		ttl:  ttl,
		rand: rand.New(rand.NewSource(seed)),
		age:  make([]int, h*w),
	}
	for i := 0; i < dots; i++ {
		d := dot{r: s.rand.Intn(h), c: s.rand.Intn(w)}
		for d.dr == 0 && d.dc == 0 {
			d.dr, d.dc = s.rand.Intn(3)-1, s.rand.Intn(3)-1
		}
		s.dots = append(s.dots, d)
	}
	return s
}

func bounce(x, dx, n int) (int, int) {
	x += dx
	if x < 0 || x >= n {
		dx = -dx
		x += 2 * dx
	}
	if x < 0 || x >= n {
		x = 0
	}
	return x, dx
}

// next advances the dots and returns the new H×W×1 frame.
func (s *source) next() *tensor.Dense {
	for i := range s.age {
		if s.age[i] > 0 {
			s.age[i]--
		}
	}
	for i := range s.dots {
		d := &s.dots[i]
		d.r, d.dr = bounce(d.r, d.dr, s.h)
		d.c, d.dc = bounce(d.c, d.dc, s.w)
		s.age[d.r*s.w+d.c] = s.ttl
	}
	data := make([]float32, len(s.age))
	for i, a := range s.age {
		data[i] = float32(a) / float32(s.ttl)
	}
	return tensor.New(tensor.WithShape(s.h, s.w, 1), tensor.WithBacking(data))
}
