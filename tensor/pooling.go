package tensor

import (
	"fmt"
)

type segmentMeanOp struct {
	inputs   []*Tensor
	segments []int32
	counts   []int
}

func (op *segmentMeanOp) Inputs() []*Tensor { return op.inputs }

func (op *segmentMeanOp) Backward(gradOut *Tensor) []*Tensor {
	in := op.inputs[0]
	features := in.Shape[1]
	gData := gradOut.Data.([]float32)
	out := make([]float32, in.NumElems)

	// Each row receives the gradient of its segment scaled by 1/count.
	for row, seg := range op.segments {
		scale := 1.0 / float32(op.counts[seg])
		for f := 0; f < features; f++ {
			out[row*features+f] = gData[int(seg)*features+f] * scale
		}
	}

	grad, err := NewTensor(in.Shape, Float32, out)
	if err != nil {
		panic(fmt.Sprintf("segment mean backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// SegmentMean averages the rows of a 2D tensor within each segment,
// producing one row per segment. segments maps every input row to a segment
// index in [0, numSegments). Every segment must contain at least one row.
func SegmentMean(x *Tensor, segments []int32, numSegments int) (*Tensor, error) {
	if x.DType != Float32 {
		return nil, fmt.Errorf("segment mean requires a Float32 tensor, got %s", x.DType)
	}
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("segment mean requires a 2D tensor, got shape %v", x.Shape)
	}
	if len(segments) != x.Shape[0] {
		return nil, fmt.Errorf("segment count %d does not match row count %d", len(segments), x.Shape[0])
	}
	if numSegments <= 0 {
		return nil, fmt.Errorf("numSegments must be positive, got %d", numSegments)
	}

	features := x.Shape[1]
	data := x.Data.([]float32)
	out := make([]float32, numSegments*features)
	counts := make([]int, numSegments)

	for row, seg := range segments {
		if seg < 0 || int(seg) >= numSegments {
			return nil, fmt.Errorf("segment index %d out of range [0, %d)", seg, numSegments)
		}
		counts[seg]++
		for f := 0; f < features; f++ {
			out[int(seg)*features+f] += data[row*features+f]
		}
	}

	for seg, count := range counts {
		if count == 0 {
			return nil, fmt.Errorf("segment %d has no rows", seg)
		}
		scale := 1.0 / float32(count)
		for f := 0; f < features; f++ {
			out[seg*features+f] *= scale
		}
	}

	result, err := NewTensor([]int{numSegments, features}, Float32, out)
	if err != nil {
		return nil, err
	}

	result.creator = &segmentMeanOp{
		inputs:   []*Tensor{x},
		segments: append([]int32{}, segments...),
		counts:   counts,
	}
	result.requiresGrad = x.requiresGrad
	return result, nil
}
