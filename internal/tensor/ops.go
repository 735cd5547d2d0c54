package tensor

import "fmt"

// TileLast2x duplicates the content of the last axis, doubling its size.
// A [B, T, D] input becomes [B, T, 2D] with the original D values repeated in
// the second half of each channel row.
func TileLast2x(t *Dense) (*Dense, error) {
	if t.Rank() < 1 {
		return nil, fmt.Errorf("tile requires rank >= 1, got rank %d", t.Rank())
	}
	last := t.shape[len(t.shape)-1]
	rows := 1
	for _, d := range t.shape[:len(t.shape)-1] {
		rows *= d
	}

	outShape := append([]int(nil), t.shape...)
	outShape[len(outShape)-1] = last * 2

	out := make([]float32, rows*last*2)
	for r := 0; r < rows; r++ {
		src := t.data[r*last : (r+1)*last]
		dst := out[r*last*2 : (r+1)*last*2]
		copy(dst[:last], src)
		copy(dst[last:], src)
	}
	return FromSlice(out, outShape...)
}

// Stack stacks same-shaped tensors along a new trailing axis. Stacking k
// tensors of shape [B, T, D] yields [B, T, D, k], with element [..., i] taken
// from the i-th input.
func Stack(tensors ...*Dense) (*Dense, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("stack requires at least one tensor")
	}
	first := tensors[0]
	for i, t := range tensors[1:] {
		if !sameShape(first, t) {
			return nil, fmt.Errorf("stack shape mismatch: tensor 0 has %v, tensor %d has %v", first.shape, i+1, t.shape)
		}
	}

	k := len(tensors)
	outShape := append(append([]int(nil), first.shape...), k)
	out := make([]float32, first.Len()*k)
	for i, t := range tensors {
		for j, v := range t.data {
			out[j*k+i] = v
		}
	}
	return FromSlice(out, outShape...)
}

// SumAxis1 sums over axis 1, removing it. A [B, T, D, L] input becomes
// [B, D, L]; a zero-sized axis 1 produces an all-zero result.
func SumAxis1(t *Dense) (*Dense, error) {
	if t.Rank() < 2 {
		return nil, fmt.Errorf("sum over axis 1 requires rank >= 2, got rank %d", t.Rank())
	}
	batch := t.shape[0]
	steps := t.shape[1]
	inner := 1
	for _, d := range t.shape[2:] {
		inner *= d
	}

	outShape := append([]int{batch}, t.shape[2:]...)
	out := make([]float32, batch*inner)
	for b := 0; b < batch; b++ {
		for s := 0; s < steps; s++ {
			base := (b*steps + s) * inner
			for i := 0; i < inner; i++ {
				out[b*inner+i] += t.data[base+i]
			}
		}
	}
	return FromSlice(out, outShape...)
}
