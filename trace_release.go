// +build !debug

package evconv

type tracer struct{}

func makeTracer() tracer { return tracer{} }

func (t tracer) log(msg string, args ...interface{}) {}

func (t tracer) Log() string { return "" }
