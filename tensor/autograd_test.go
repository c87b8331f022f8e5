package tensor

import (
	"testing"
)

func leafTensor(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	out := mustTensor(t, shape, data)
	out.SetRequiresGrad(true)
	return out
}

func checkGrad(t *testing.T, leaf *Tensor, want []float32) {
	t.Helper()
	grad := leaf.Grad()
	if grad == nil {
		t.Fatal("leaf has no gradient")
	}
	checkFloats(t, grad, want)
}

func TestBackwardSimpleChain(t *testing.T) {
	// loss = sum(a * b) with a = [1, 2], b = [3, 4].
	// dloss/da = b, dloss/db = a.
	a := leafTensor(t, []int{2}, []float32{1, 2})
	b := leafTensor(t, []int{2}, []float32{3, 4})

	prod, err := MulAutograd(a, b)
	if err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	loss, err := SumAutograd(prod)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}

	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, a, []float32{3, 4})
	checkGrad(t, b, []float32{1, 2})
}

func TestBackwardSharedInput(t *testing.T) {
	// loss = sum(x * x): the gradient of x must accumulate both branches,
	// giving 2x.
	x := leafTensor(t, []int{3}, []float32{1, 2, 3})

	sq, err := MulAutograd(x, x)
	if err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	loss, err := SumAutograd(sq)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}

	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, x, []float32{2, 4, 6})
}

func TestBackwardSub(t *testing.T) {
	a := leafTensor(t, []int{2}, []float32{5, 7})
	b := leafTensor(t, []int{2}, []float32{1, 2})

	diff, err := SubAutograd(a, b)
	if err != nil {
		t.Fatalf("sub failed: %v", err)
	}
	loss, err := SumAutograd(diff)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, a, []float32{1, 1})
	checkGrad(t, b, []float32{-1, -1})
}

func TestBackwardScale(t *testing.T) {
	x := leafTensor(t, []int{2}, []float32{1, 2})

	scaled, err := ScaleAutograd(x, 3)
	if err != nil {
		t.Fatalf("scale failed: %v", err)
	}
	loss, err := SumAutograd(scaled)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, x, []float32{3, 3})
}

func TestBackwardReLU(t *testing.T) {
	x := leafTensor(t, []int{4}, []float32{-1, 0, 1, 2})

	activated, err := ReLUAutograd(x)
	if err != nil {
		t.Fatalf("relu failed: %v", err)
	}
	loss, err := SumAutograd(activated)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	// Gradient flows only through strictly positive inputs.
	checkGrad(t, x, []float32{0, 0, 1, 1})
}

func TestBackwardMatMul(t *testing.T) {
	a := leafTensor(t, []int{2, 2}, []float32{1, 2, 3, 4})
	b := leafTensor(t, []int{2, 2}, []float32{5, 6, 7, 8})

	prod, err := MatMulAutograd(a, b)
	if err != nil {
		t.Fatalf("matmul failed: %v", err)
	}
	loss, err := SumAutograd(prod)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	// With an all-ones upstream gradient, dA = ones @ B^T and dB = A^T @ ones.
	checkGrad(t, a, []float32{11, 15, 11, 15})
	checkGrad(t, b, []float32{4, 4, 6, 6})
}

func TestBackwardBroadcastBias(t *testing.T) {
	// Adding a [C] bias to [N, C]: the bias gradient is the column sum.
	x := leafTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := leafTensor(t, []int{3}, []float32{0, 0, 0})

	out, err := AddAutograd(x, bias)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	loss, err := SumAutograd(out)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, bias, []float32{2, 2, 2})
	checkGrad(t, x, []float32{1, 1, 1, 1, 1, 1})
}

func TestBackwardAccumulatesAcrossCalls(t *testing.T) {
	x := leafTensor(t, []int{2}, []float32{1, 2})

	for i := 0; i < 2; i++ {
		loss, err := SumAutograd(x)
		if err != nil {
			t.Fatalf("sum failed: %v", err)
		}
		if err := loss.Backward(); err != nil {
			t.Fatalf("backward failed: %v", err)
		}
	}
	checkGrad(t, x, []float32{2, 2})

	ZeroGrad([]*Tensor{x})
	checkGrad(t, x, []float32{0, 0})
}

func TestBackwardRequiresScalar(t *testing.T) {
	x := leafTensor(t, []int{2}, []float32{1, 2})
	if err := x.Backward(); err == nil {
		t.Error("expected error for multi-element backward root")
	}
}

func TestBackwardSkipsDetachedInputs(t *testing.T) {
	x := leafTensor(t, []int{2}, []float32{1, 2})
	constant := mustTensor(t, []int{2}, []float32{10, 20})

	prod, err := MulAutograd(x, constant)
	if err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	loss, err := SumAutograd(prod)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	checkGrad(t, x, []float32{10, 20})
	if constant.Grad() != nil {
		t.Error("detached input must not receive a gradient")
	}
}
