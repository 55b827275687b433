// Package dense is a small row-major float32 buffer used for feature maps and
// kernel weights. Rows are pixels (or kernel offsets), columns are channels.
package dense

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Matrix is a contiguous row-major rows×cols buffer.
type Matrix struct {
	rows, cols int
	data       []float32
}

// New returns a zero-filled rows×cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float32, rows*cols),
	}
}

// FromBacking wraps data as a rows×cols matrix without copying.
func FromBacking(rows, cols int, data []float32) (*Matrix, error) {
	if rows < 0 || cols < 0 || rows*cols != len(data) {
		return nil, errors.Errorf("cannot view %d elements as %d×%d", len(data), rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// FromTensor views the backing of a float32 tensor as a matrix with cols columns.
// The tensor's total size must be a multiple of cols.
func FromTensor(t *tensor.Dense, cols int) (*Matrix, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return nil, errors.Errorf("expected a tensor of %v. Got %v", tensor.Float32, t.Dtype())
	}
	data, ok := t.Data().([]float32)
	if !ok {
		// scalar tensors carry a bare float32
		return nil, errors.Errorf("tensor of shape %v has no []float32 backing", t.Shape())
	}
	if cols <= 0 || len(data)%cols != 0 {
		return nil, errors.Errorf("cannot split %d elements into rows of %d", len(data), cols)
	}
	return FromBacking(len(data)/cols, cols, data)
}

func (m *Matrix) Rows() int         { return m.rows }
func (m *Matrix) Cols() int         { return m.cols }
func (m *Matrix) Shape() (int, int) { return m.rows, m.cols }

// Data returns the backing slice.
func (m *Matrix) Data() []float32 { return m.data }

// Row returns a view of row i.
func (m *Matrix) Row(i int) []float32 {
	start := i * m.cols
	return m.data[start : start+m.cols : start+m.cols]
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float32 { return m.data[i*m.cols+j] }

// Set sets element (i, j).
func (m *Matrix) Set(i, j int, v float32) { m.data[i*m.cols+j] = v }

// L1 is the sum of absolute values of row i.
func (m *Matrix) L1(i int) float32 {
	var s float32
	for _, v := range m.Row(i) {
		s += math32.Abs(v)
	}
	return s
}

// RowsL1 gathers the rows named by idx and reduces each to its L1 norm.
func (m *Matrix) RowsL1(idx []int) []float32 {
	retVal := make([]float32, len(idx))
	for i, r := range idx {
		retVal[i] = m.L1(r)
	}
	return retVal
}

// Gather returns a new matrix made of the rows named by idx, in order.
func (m *Matrix) Gather(idx []int) *Matrix {
	retVal := New(len(idx), m.cols)
	for i, r := range idx {
		copy(retVal.Row(i), m.Row(r))
	}
	return retVal
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	retVal := New(m.rows, m.cols)
	copy(retVal.data, m.data)
	return retVal
}

// CopyFrom overwrites m with the contents of other. Shapes must match.
func (m *Matrix) CopyFrom(other *Matrix) error {
	if m.rows != other.rows || m.cols != other.cols {
		return errors.Errorf("cannot copy %d×%d into %d×%d", other.rows, other.cols, m.rows, m.cols)
	}
	copy(m.data, other.data)
	return nil
}

// ZeroRow sets every element of row i to 0.
func (m *Matrix) ZeroRow(i int) {
	row := m.Row(i)
	for j := range row {
		row[j] = 0
	}
}

// AddRow adds v to row i.
func (m *Matrix) AddRow(i int, v []float32) { vecf32.Add(m.Row(i), v) }

// Block views row i as an r×c matrix. r·c must equal Cols().
func (m *Matrix) Block(i, r, c int) (*Matrix, error) {
	if r*c != m.cols {
		return nil, errors.Errorf("row of %d elements cannot be reshaped to %d×%d", m.cols, r, c)
	}
	return FromBacking(r, c, m.Row(i))
}

// MulVecAdd computes dst += m·x. len(x) must be Cols() and len(dst) Rows().
func (m *Matrix) MulVecAdd(dst, x []float32) {
	x = x[:m.cols]
	for i := range dst[:m.rows] {
		var s float32
		for j, w := range m.Row(i) {
			s += w * x[j]
		}
		dst[i] += s
	}
}

// Tensor returns a tensor sharing m's backing, shaped as requested. With no
// shape the tensor is rows×cols.
func (m *Matrix) Tensor(shape ...int) (*tensor.Dense, error) {
	if len(shape) == 0 {
		shape = []int{m.rows, m.cols}
	}
	if s := tensor.Shape(shape); s.TotalSize() != len(m.data) {
		return nil, errors.Errorf("cannot reshape %d×%d into %v", m.rows, m.cols, s)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(m.data)), nil
}

// Equal reports whether both matrices have the same shape and elements.
func (m *Matrix) Equal(other *Matrix) bool {
	if m.rows != other.rows || m.cols != other.cols {
		return false
	}
	for i, v := range m.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}
