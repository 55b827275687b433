package gif

import (
	"image/gif"
	"io"

	"github.com/gorgonia/evconv"
	"github.com/gorgonia/evconv/encoding"
	"github.com/pkg/errors"
)

// Encoder collects frames into an animated GIF. It implements evconv.OutputEncoder.
type Encoder struct {
	*encoding.Renderer
	io.Writer

	// Delay is the time each frame is shown, in 100ths of a second.
	Delay int

	out *gif.GIF
}

// NewGifEncoder writes to w on Flush, drawing each pixel as a cell×cell square.
func NewGifEncoder(w io.Writer, cell int) *Encoder {
	return &Encoder{
		Renderer: encoding.NewRenderer(cell),
		Writer:   w,
		Delay:    20,
		out:      &gif.GIF{LoopCount: 0},
	}
}

// Encode a frame
func (enc *Encoder) Encode(f evconv.Frame) error {
	im, err := enc.Render(f)
	if err != nil {
		return err
	}
	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.Delay)
	return nil
}

// Len is the number of frames encoded so far.
func (enc *Encoder) Len() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if len(enc.out.Image) == 0 {
		return errors.New("no frames to write")
	}
	return errors.WithStack(gif.EncodeAll(enc.Writer, enc.out))
}
