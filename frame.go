package evconv

// Frame is one Step of a named layer, as handed to an OutputEncoder.
type Frame struct {
	Layer string
	Call  int
	Rules int
	Step
}

// OutputEncoder encodes a stream of frames as whatever.
//
// Examples are the GIF and MJPEG encoders in the encoding directory. Another
// example would be a logger.
type OutputEncoder interface {
	Encode(f Frame) error
	Flush() error
}
