// Package encoding draws the activity of a layer, one picture per Frame. The
// gif and mjpeg subpackages turn those pictures into streams.
package encoding

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/gorgonia/evconv"
	"github.com/gorgonia/evconv/dense"
	"github.com/gorgonia/evconv/site"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi             = 144.0
	fontsize        = 12.0
	lineheight      = 1.2
	dummyLongString = `layer0000, call 100000, 1000000 rules`
	levels          = 16
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// Palette indices.
const (
	Inactive = iota
	Background
	NewActive
	NewInactive
	Active // first of the gray levels, darkest first
)

// Palette is shared by every rendered picture.
var Palette = func() color.Palette {
	p := color.Palette{
		color.Gray{0},
		color.Gray{253},
		color.RGBA{0, 200, 0, 255},
		color.RGBA{220, 0, 0, 255},
	}
	for i := 0; i < levels; i++ {
		g := uint8(64 + i*(255-64)/(levels-1))
		p = append(p, color.RGBA{g, g, 255, 255})
	}
	return p
}()

// Renderer draws frames of one layer. The picture size is fixed by the first
// frame. A Renderer is not safe for concurrent use.
type Renderer struct {
	Cell int // edge of one pixel's square
	font.Drawer

	H, W       int
	padH, padW int
	gridH      int
	dy         int

	initialized bool
}

// NewRenderer draws every pixel as a cell×cell square.
func NewRenderer(cell int) *Renderer {
	if cell < 1 {
		cell = 1
	}
	return &Renderer{
		Cell: cell,
		padH: 10,
		padW: 10,
		Drawer: font.Drawer{
			Src: image.Black,
		},
	}
}

func (r *Renderer) init(f evconv.Frame) {
	r.Drawer.Face = truetype.NewFace(regular, &truetype.Options{
		Size:    fontsize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	r.dy = int(math.Ceil(fontsize * lineheight * dpi / 72))
	r.gridH = f.Sites.H * r.Cell
	textW := font.MeasureString(r.Face, dummyLongString).Ceil()
	r.W = maxInt(f.Sites.W*r.Cell, textW) + 2*r.padW
	r.H = r.gridH + 2*r.dy + 2*r.padH
	r.initialized = true
}

// Render draws the classification of f, shading active pixels by the L1 norm of
// their output, with a caption below.
func (r *Renderer) Render(f evconv.Frame) (*image.Paletted, error) {
	if f.Sites.IsZero() || f.Output == nil {
		return nil, errors.Errorf("frame %d of %q has nothing to draw", f.Call, f.Layer)
	}
	shp := f.Output.Shape()
	if len(shp) != 3 {
		return nil, errors.Errorf("expected an H×W×C output. Got %v", shp)
	}
	out, err := dense.FromTensor(f.Output, shp[2])
	if err != nil {
		return nil, err
	}
	if out.Rows() != f.Sites.Len() {
		return nil, errors.Errorf("output of %d pixels does not match a %d×%d classification", out.Rows(), f.Sites.H, f.Sites.W)
	}
	if !r.initialized {
		r.init(f)
	}
	if f.Sites.H*r.Cell != r.gridH {
		return nil, errors.Errorf("renderer was sized for %d rows. Got %d", r.gridH/r.Cell, f.Sites.H)
	}

	var max float32
	norms := make([]float32, out.Rows())
	for i := range norms {
		norms[i] = out.L1(i)
		if norms[i] > max {
			max = norms[i]
		}
	}

	im := image.NewPaletted(image.Rect(0, 0, r.W, r.H), Palette)
	draw.Draw(im, im.Bounds(), image.NewUniform(Palette[Background]), image.Point{}, draw.Src)
	for px, s := range f.Sites.States {
		idx := uint8(Inactive)
		switch s {
		case site.NewActive:
			idx = NewActive
		case site.NewInactive:
			idx = NewInactive
		case site.Active:
			idx = Active
			if max > 0 {
				idx += uint8(float32(levels-1) * norms[px] / max)
			}
		}
		c := site.FromLinear(px, f.Sites.W)
		x0, y0 := r.padW+c.Col*r.Cell, r.padH+c.Row*r.Cell
		for y := y0; y < y0+r.Cell; y++ {
			for x := x0; x < x0+r.Cell; x++ {
				im.SetColorIndex(x, y, idx)
			}
		}
	}

	r.Dst = im
	y := r.padH + r.gridH + r.dy
	r.Dot = fixed.P(r.padW, y)
	r.DrawString(f.Layer)
	y += r.dy
	r.Dot = fixed.P(r.padW, y)
	r.DrawString(fmt.Sprintf("call %d, %d rules, %d updates", f.Call, f.Rules, len(f.Updates)))
	return im, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
