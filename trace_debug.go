// +build debug

package evconv

import (
	"bytes"
	"fmt"
)

type tracer struct {
	*bytes.Buffer
}

func makeTracer() tracer { return tracer{Buffer: new(bytes.Buffer)} }

func (t tracer) log(msg string, args ...interface{}) {
	fmt.Fprintf(t.Buffer, msg, args...)
	t.WriteByte('\n')
}

func (t tracer) Log() string { return t.String() }
