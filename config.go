package evconv

// Config configures one layer. It is fixed once the layer is built.
type Config struct {
	Dimension  int // spatial dimension, only 2 is supported
	NIn, NOut  int // input and output channels
	FilterSize int // kernel edge length

	FirstLayer bool // the layer consumes the raw sparse input
	UseBias    bool
}

// DefaultConf returns a biased 3×3 downstream layer.
func DefaultConf(nIn, nOut int) Config {
	return Config{
		Dimension:  2,
		NIn:        nIn,
		NOut:       nOut,
		FilterSize: 3,
		UseBias:    true,
	}
}

func (conf Config) IsValid() bool {
	return conf.Dimension == 2 &&
		conf.NIn >= 1 &&
		conf.NOut >= 1 &&
		conf.FilterSize >= 1
}

// FilterVolume is the number of kernel offsets, FilterSize^Dimension.
func (conf Config) FilterVolume() int {
	vol := 1
	for i := 0; i < conf.Dimension; i++ {
		vol *= conf.FilterSize
	}
	return vol
}

// Padding returns the padding before and after each axis. Even filter sizes give
// a larger reach on the leading side.
func (conf Config) Padding() []int {
	retVal := make([]int, 2*conf.Dimension)
	for i := range retVal {
		retVal[i] = conf.FilterSize / 2
	}
	return retVal
}
