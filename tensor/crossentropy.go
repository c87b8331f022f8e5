package tensor

import (
	"fmt"
	"math"
)

type sparseCrossEntropyOp struct {
	inputs []*Tensor
	probs  []float32
	target *Tensor
}

func (op *sparseCrossEntropyOp) Inputs() []*Tensor { return op.inputs }

func (op *sparseCrossEntropyOp) Backward(gradOut *Tensor) []*Tensor {
	logits := op.inputs[0]
	batchSize := logits.Shape[0]
	numClasses := logits.Shape[1]
	targetData := op.target.Data.([]int32)
	g := gradOut.Data.([]float32)[0]

	// d(mean NLL)/dlogits = (softmax - onehot) / N, scaled by the incoming
	// scalar gradient.
	grad := make([]float32, len(op.probs))
	scale := g / float32(batchSize)
	copy(grad, op.probs)
	for i := 0; i < batchSize; i++ {
		grad[i*numClasses+int(targetData[i])] -= 1.0
	}
	for i := range grad {
		grad[i] *= scale
	}

	gradT, err := NewTensor(logits.Shape, Float32, grad)
	if err != nil {
		panic(fmt.Sprintf("cross entropy backward failed: %v", err))
	}
	return []*Tensor{gradT}
}

// SparseCrossEntropy computes mean softmax cross-entropy between logits
// [batch, classes] and Int32 class indices [batch], returning a
// single-element tensor attached to the autograd graph.
func SparseCrossEntropy(logits, target *Tensor) (*Tensor, error) {
	if logits.DType != Float32 || target.DType != Int32 {
		return nil, fmt.Errorf("cross entropy requires Float32 logits and Int32 targets, got %s and %s", logits.DType, target.DType)
	}
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("logits must be 2D [batch, classes], got shape %v", logits.Shape)
	}
	if len(target.Shape) != 1 {
		return nil, fmt.Errorf("target must be 1D [batch], got shape %v", target.Shape)
	}

	batchSize := logits.Shape[0]
	numClasses := logits.Shape[1]
	if target.Shape[0] != batchSize {
		return nil, fmt.Errorf("batch size mismatch: logits %d, target %d", batchSize, target.Shape[0])
	}

	data := logits.Data.([]float32)
	targetData := target.Data.([]int32)
	probs := make([]float32, len(data))

	var totalLoss float64
	for i := 0; i < batchSize; i++ {
		offset := i * numClasses

		cls := targetData[i]
		if cls < 0 || int(cls) >= numClasses {
			return nil, fmt.Errorf("target class %d out of range [0, %d)", cls, numClasses)
		}

		// Softmax with max subtraction for numerical stability.
		maxVal := data[offset]
		for j := 1; j < numClasses; j++ {
			if data[offset+j] > maxVal {
				maxVal = data[offset+j]
			}
		}

		var sum float32
		for j := 0; j < numClasses; j++ {
			e := float32(math.Exp(float64(data[offset+j] - maxVal)))
			probs[offset+j] = e
			sum += e
		}
		for j := 0; j < numClasses; j++ {
			probs[offset+j] /= sum
		}

		p := probs[offset+int(cls)]
		if p < 1e-10 {
			p = 1e-10
		}
		totalLoss += -math.Log(float64(p))
	}

	result, err := NewTensor([]int{1}, Float32, []float32{float32(totalLoss / float64(batchSize))})
	if err != nil {
		return nil, err
	}

	result.creator = &sparseCrossEntropyOp{
		inputs: []*Tensor{logits},
		probs:  probs,
		target: target,
	}
	result.requiresGrad = logits.requiresGrad
	return result, nil
}
