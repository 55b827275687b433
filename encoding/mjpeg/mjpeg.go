package mjpeg

import (
	"bytes"
	"image/jpeg"
	"log"
	"net/http"

	"github.com/gorgonia/evconv"
	"github.com/gorgonia/evconv/encoding"
	"github.com/mattn/go-mjpeg"
)

// Encoder streams frames as MJPEG over HTTP. It implements evconv.OutputEncoder.
type Encoder struct {
	*encoding.Renderer

	stream *mjpeg.Stream
	last   []byte
}

func (enc *Encoder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	enc.stream.ServeHTTP(w, r)
}

// NewEncoder draws each pixel as a cell×cell square.
func NewEncoder(cell int) *Encoder {
	return &Encoder{
		Renderer: encoding.NewRenderer(cell),
		stream:   mjpeg.NewStream(),
	}
}

// Encode a frame
func (enc *Encoder) Encode(f evconv.Frame) error {
	im, err := enc.Render(f)
	if err != nil {
		return err
	}
	var b bytes.Buffer
	if err = jpeg.Encode(&b, im, nil); err != nil {
		log.Println(err)
		return err
	}
	enc.last = b.Bytes()
	if err = enc.stream.Update(enc.last); err != nil {
		log.Println(err)
		return err
	}
	return nil
}

// Last returns the JPEG of the most recent frame.
func (enc *Encoder) Last() []byte { return enc.last }

func (enc *Encoder) Flush() error { return nil }
