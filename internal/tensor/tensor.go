// Package tensor provides a minimal dense float32 tensor for embedding math.
//
// The producer only needs a handful of shape operations (tile, stack, sum over
// the time axis), so this stays deliberately small: row-major storage, explicit
// shapes, no broadcasting.
package tensor

import (
	"fmt"
	"math"
)

// Dense is a row-major dense float32 tensor.
type Dense struct {
	shape []int
	data  []float32
}

// New creates a zero-filled tensor with the given shape.
// All dimensions must be >= 0.
func New(shape ...int) (*Dense, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	return &Dense{
		shape: append([]int(nil), shape...),
		data:  make([]float32, n),
	}, nil
}

// FromSlice creates a tensor wrapping the given data with the given shape.
// The data length must match the shape volume.
func FromSlice(data []float32, shape ...int) (*Dense, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v (volume %d)", len(data), shape, n)
	}
	return &Dense{
		shape: append([]int(nil), shape...),
		data:  data,
	}, nil
}

// Shape returns the tensor shape. The returned slice must not be modified.
func (t *Dense) Shape() []int {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Dense) Rank() int {
	return len(t.shape)
}

// Len returns the total number of elements.
func (t *Dense) Len() int {
	return len(t.data)
}

// Data returns the underlying row-major data. The returned slice must not be
// modified.
func (t *Dense) Data() []float32 {
	return t.data
}

// At returns the element at the given indices.
func (t *Dense) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set assigns the element at the given indices.
func (t *Dense) Set(v float32, indices ...int) {
	t.data[t.offset(indices)] = v
}

func (t *Dense) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank-%d tensor", len(indices), len(t.shape)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off = off*t.shape[i] + idx
	}
	return off
}

// sameShape reports whether a and b have identical shapes.
func sameShape(a, b *Dense) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two tensors have identical shape and exactly equal
// elements.
func Equal(a, b *Dense) bool {
	if !sameShape(a, b) {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

// CloseTo reports whether two tensors have identical shape and elementwise
// absolute difference within tol.
func CloseTo(a, b *Dense, tol float64) bool {
	if !sameShape(a, b) {
		return false
	}
	for i := range a.data {
		if math.Abs(float64(a.data[i])-float64(b.data[i])) > tol {
			return false
		}
	}
	return true
}
