package tensor

import (
	"fmt"
)

// reduceGradientToShape reduces a gradient tensor to the shape of the input
// it belongs to. This is needed when broadcasting occurred in the forward
// pass: the gradient contributions of the broadcast copies are summed.
func reduceGradientToShape(grad *Tensor, targetShape []int) *Tensor {
	if shapesEqual(grad.Shape, targetShape) {
		out, err := grad.Clone()
		if err != nil {
			panic(fmt.Sprintf("gradient clone failed: %v", err))
		}
		return out
	}

	data := grad.Data.([]float32)

	// Scalar target: sum everything.
	if calculateNumElements(targetShape) == 1 {
		var total float32
		for _, v := range data {
			total += v
		}
		out, err := NewTensor(targetShape, Float32, []float32{total})
		if err != nil {
			panic(fmt.Sprintf("gradient reduction failed: %v", err))
		}
		return out
	}

	// Vector [C] broadcast across rows of [N, C]: sum the rows.
	if len(grad.Shape) == 2 && len(targetShape) == 1 && grad.Shape[1] == targetShape[0] {
		cols := targetShape[0]
		out := make([]float32, cols)
		for i, v := range data {
			out[i%cols] += v
		}
		t, err := NewTensor(targetShape, Float32, out)
		if err != nil {
			panic(fmt.Sprintf("gradient reduction failed: %v", err))
		}
		return t
	}

	panic(fmt.Sprintf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape))
}

// accumulateInto adds src into dst in place. Both must be Float32 with
// identical shapes.
func accumulateInto(dst, src *Tensor) {
	d := dst.Data.([]float32)
	s := src.Data.([]float32)
	for i := range d {
		d[i] += s[i]
	}
}

// Backward runs reverse-mode differentiation from a single-element tensor,
// accumulating gradients into every reachable leaf tensor that requires
// them. Gradients add into any existing .Grad() values; use ZeroGrad to
// clear them between steps.
func (t *Tensor) Backward() error {
	if t.DType != Float32 {
		return fmt.Errorf("backward requires a Float32 tensor, got %s", t.DType)
	}
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a single-element tensor, got shape %v", t.Shape)
	}

	seed, err := Ones(t.Shape, Float32)
	if err != nil {
		return fmt.Errorf("failed to create gradient seed: %v", err)
	}

	order := topoSort(t)
	grads := map[*Tensor]*Tensor{t: seed}

	// order lists inputs before outputs; walk it backwards so every node's
	// gradient is complete before it is propagated further.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		grad := grads[node]
		if grad == nil {
			continue
		}

		if node.creator == nil {
			if node.requiresGrad {
				if node.grad == nil {
					zero, err := Zeros(node.Shape, Float32)
					if err != nil {
						return fmt.Errorf("failed to allocate gradient for %v: %v", node.Shape, err)
					}
					node.grad = zero
				}
				accumulateInto(node.grad, grad)
			}
			continue
		}

		inputGrads := node.creator.Backward(grad)
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs", len(inputGrads), len(inputs))
		}

		for j, input := range inputs {
			ig := inputGrads[j]
			if ig == nil {
				continue
			}
			if !input.requiresGrad && input.creator == nil {
				continue
			}
			if existing := grads[input]; existing != nil {
				accumulateInto(existing, ig)
			} else {
				grads[input] = ig
			}
		}
	}

	return nil
}

// topoSort returns tensors reachable from root through op inputs, ordered
// so that every op's inputs appear before its output.
func topoSort(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := map[*Tensor]bool{}

	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		if t.creator != nil {
			for _, in := range t.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, t)
	}

	visit(root)
	return order
}

// ZeroGrad clears the accumulated gradients of the given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			data := t.grad.Data.([]float32)
			for i := range data {
				data[i] = 0
			}
		}
	}
}

type addOp struct {
	inputs []*Tensor
}

func (op *addOp) Inputs() []*Tensor { return op.inputs }

func (op *addOp) Backward(gradOut *Tensor) []*Tensor {
	// d(a+b)/da = 1, d(a+b)/db = 1, reduced over broadcast dimensions.
	return []*Tensor{
		reduceGradientToShape(gradOut, op.inputs[0].Shape),
		reduceGradientToShape(gradOut, op.inputs[1].Shape),
	}
}

// AddAutograd performs addition and records the op for backpropagation.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	result.creator = &addOp{inputs: []*Tensor{a, b}}
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result, nil
}

type subOp struct {
	inputs []*Tensor
}

func (op *subOp) Inputs() []*Tensor { return op.inputs }

func (op *subOp) Backward(gradOut *Tensor) []*Tensor {
	gradA := reduceGradientToShape(gradOut, op.inputs[0].Shape)

	neg, err := Scale(gradOut, -1)
	if err != nil {
		panic(fmt.Sprintf("gradient negation failed: %v", err))
	}
	gradB := reduceGradientToShape(neg, op.inputs[1].Shape)

	return []*Tensor{gradA, gradB}
}

// SubAutograd performs subtraction and records the op for backpropagation.
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Sub(a, b)
	if err != nil {
		return nil, err
	}
	result.creator = &subOp{inputs: []*Tensor{a, b}}
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result, nil
}

type mulOp struct {
	inputs []*Tensor
}

func (op *mulOp) Inputs() []*Tensor { return op.inputs }

func (op *mulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(a*b)/da = b, d(a*b)/db = a.
	gradAFull, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("mul backward failed for input A: %v", err))
	}
	gradBFull, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("mul backward failed for input B: %v", err))
	}

	return []*Tensor{
		reduceGradientToShape(gradAFull, a.Shape),
		reduceGradientToShape(gradBFull, b.Shape),
	}
}

// MulAutograd performs elementwise multiplication and records the op for
// backpropagation.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	result.creator = &mulOp{inputs: []*Tensor{a, b}}
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result, nil
}

type matMulOp struct {
	inputs []*Tensor
}

func (op *matMulOp) Inputs() []*Tensor { return op.inputs }

func (op *matMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(A@B)/dA = gradOut @ B^T, d(A@B)/dB = A^T @ gradOut.
	bT, err := Transpose(b)
	if err != nil {
		panic(fmt.Sprintf("matmul backward transpose failed: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("matmul backward failed for input A: %v", err))
	}

	aT, err := Transpose(a)
	if err != nil {
		panic(fmt.Sprintf("matmul backward transpose failed: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("matmul backward failed for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// MatMulAutograd performs matrix multiplication and records the op for
// backpropagation.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	result, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	result.creator = &matMulOp{inputs: []*Tensor{a, b}}
	result.requiresGrad = a.requiresGrad || b.requiresGrad
	return result, nil
}

type reluOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *reluOp) Inputs() []*Tensor { return op.inputs }

func (op *reluOp) Backward(gradOut *Tensor) []*Tensor {
	// dReLU(x)/dx = 1 where x > 0, else 0.
	inData := op.inputs[0].Data.([]float32)
	gData := gradOut.Data.([]float32)
	out := make([]float32, len(gData))
	for i := range out {
		if inData[i] > 0 {
			out[i] = gData[i]
		}
	}

	grad, err := NewTensor(op.inputs[0].Shape, Float32, out)
	if err != nil {
		panic(fmt.Sprintf("relu backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// ReLUAutograd applies ReLU and records the op for backpropagation.
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	result, err := ReLU(a)
	if err != nil {
		return nil, err
	}
	result.creator = &reluOp{inputs: []*Tensor{a}, output: result}
	result.requiresGrad = a.requiresGrad
	return result, nil
}

type sumOp struct {
	inputs []*Tensor
}

func (op *sumOp) Inputs() []*Tensor { return op.inputs }

func (op *sumOp) Backward(gradOut *Tensor) []*Tensor {
	// d(sum(x))/dx broadcasts the scalar gradient to every element.
	g := gradOut.Data.([]float32)[0]
	in := op.inputs[0]
	out := make([]float32, in.NumElems)
	for i := range out {
		out[i] = g
	}

	grad, err := NewTensor(in.Shape, Float32, out)
	if err != nil {
		panic(fmt.Sprintf("sum backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// SumAutograd reduces a tensor to a single-element total and records the op
// for backpropagation.
func SumAutograd(a *Tensor) (*Tensor, error) {
	result, err := Sum(a)
	if err != nil {
		return nil, err
	}
	result.creator = &sumOp{inputs: []*Tensor{a}}
	result.requiresGrad = a.requiresGrad
	return result, nil
}

type scaleOp struct {
	inputs []*Tensor
	factor float64
}

func (op *scaleOp) Inputs() []*Tensor { return op.inputs }

func (op *scaleOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Scale(gradOut, op.factor)
	if err != nil {
		panic(fmt.Sprintf("scale backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// ScaleAutograd multiplies a tensor by a constant scalar and records the op
// for backpropagation.
func ScaleAutograd(a *Tensor, factor float64) (*Tensor, error) {
	result, err := Scale(a, factor)
	if err != nil {
		return nil, err
	}
	result.creator = &scaleOp{inputs: []*Tensor{a}, factor: factor}
	result.requiresGrad = a.requiresGrad
	return result, nil
}
