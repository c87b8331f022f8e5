package tensor

import (
	"math"
	"testing"
)

const tolerance = 1e-5

func closeEnough(a, b float32) bool {
	return math.Abs(float64(a-b)) < tolerance
}

func mustTensor(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	out, err := NewTensor(shape, Float32, data)
	if err != nil {
		t.Fatalf("failed to create tensor %v: %v", shape, err)
	}
	return out
}

func checkFloats(t *testing.T, got *Tensor, want []float32) {
	t.Helper()
	data, err := got.GetFloat32Data()
	if err != nil {
		t.Fatalf("failed to read tensor data: %v", err)
	}
	if len(data) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(data), len(want))
	}
	for i := range want {
		if !closeEnough(data[i], want[i]) {
			t.Errorf("element %d: got %g, want %g", i, data[i], want[i])
		}
	}
}

func TestElementwiseOps(t *testing.T) {
	a := mustTensor(t, []int{2, 2}, []float32{1, 2, 3, 4})
	b := mustTensor(t, []int{2, 2}, []float32{5, 6, 7, 8})

	t.Run("Add", func(t *testing.T) {
		out, err := Add(a, b)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		checkFloats(t, out, []float32{6, 8, 10, 12})
	})

	t.Run("Sub", func(t *testing.T) {
		out, err := Sub(b, a)
		if err != nil {
			t.Fatalf("sub failed: %v", err)
		}
		checkFloats(t, out, []float32{4, 4, 4, 4})
	})

	t.Run("Mul", func(t *testing.T) {
		out, err := Mul(a, b)
		if err != nil {
			t.Fatalf("mul failed: %v", err)
		}
		checkFloats(t, out, []float32{5, 12, 21, 32})
	})

	t.Run("Div", func(t *testing.T) {
		out, err := Div(b, a)
		if err != nil {
			t.Fatalf("div failed: %v", err)
		}
		checkFloats(t, out, []float32{5, 3, 7.0 / 3.0, 2})
	})

	t.Run("Scale", func(t *testing.T) {
		out, err := Scale(a, 2.5)
		if err != nil {
			t.Fatalf("scale failed: %v", err)
		}
		checkFloats(t, out, []float32{2.5, 5, 7.5, 10})
	})
}

func TestBroadcasting(t *testing.T) {
	t.Run("ScalarOperand", func(t *testing.T) {
		a := mustTensor(t, []int{3}, []float32{1, 2, 3})
		s := mustTensor(t, []int{1}, []float32{10})

		out, err := Add(a, s)
		if err != nil {
			t.Fatalf("broadcast add failed: %v", err)
		}
		checkFloats(t, out, []float32{11, 12, 13})
	})

	t.Run("VectorOverRows", func(t *testing.T) {
		m := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
		v := mustTensor(t, []int{3}, []float32{10, 20, 30})

		out, err := Add(m, v)
		if err != nil {
			t.Fatalf("broadcast add failed: %v", err)
		}
		checkFloats(t, out, []float32{11, 22, 33, 14, 25, 36})
	})

	t.Run("IncompatibleShapes", func(t *testing.T) {
		a := mustTensor(t, []int{2, 3}, make([]float32, 6))
		b := mustTensor(t, []int{3, 2}, make([]float32, 6))

		if _, err := Add(a, b); err == nil {
			t.Error("expected error for incompatible shapes")
		}
	})
}

func TestReLU(t *testing.T) {
	x := mustTensor(t, []int{5}, []float32{-2, -0.5, 0, 0.5, 2})
	out, err := ReLU(x)
	if err != nil {
		t.Fatalf("relu failed: %v", err)
	}
	checkFloats(t, out, []float32{0, 0, 0, 0.5, 2})
}

func TestSum(t *testing.T) {
	x := mustTensor(t, []int{2, 2}, []float32{1, 2, 3, 4})
	out, err := Sum(x)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if len(out.Shape) != 1 || out.Shape[0] != 1 {
		t.Fatalf("sum should produce a single-element tensor, got shape %v", out.Shape)
	}
	checkFloats(t, out, []float32{10})
}

func TestMatMul(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		a := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
		b := mustTensor(t, []int{3, 2}, []float32{7, 8, 9, 10, 11, 12})

		out, err := MatMul(a, b)
		if err != nil {
			t.Fatalf("matmul failed: %v", err)
		}
		if out.Shape[0] != 2 || out.Shape[1] != 2 {
			t.Fatalf("unexpected output shape %v", out.Shape)
		}
		checkFloats(t, out, []float32{58, 64, 139, 154})
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		a := mustTensor(t, []int{2, 3}, make([]float32, 6))
		b := mustTensor(t, []int{2, 3}, make([]float32, 6))

		if _, err := MatMul(a, b); err == nil {
			t.Error("expected error for inner dimension mismatch")
		}
	})
}

func TestTranspose(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	out, err := Transpose(a)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	if out.Shape[0] != 3 || out.Shape[1] != 2 {
		t.Fatalf("unexpected transpose shape %v", out.Shape)
	}
	checkFloats(t, out, []float32{1, 4, 2, 5, 3, 6})
}

func TestCloneIndependence(t *testing.T) {
	a := mustTensor(t, []int{2}, []float32{1, 2})
	c, err := a.Clone()
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}

	if err := a.SetData([]float32{9, 9}); err != nil {
		t.Fatalf("set data failed: %v", err)
	}
	checkFloats(t, c, []float32{1, 2})
}

func TestItem(t *testing.T) {
	s := mustTensor(t, []int{1}, []float32{3.5})
	v, err := s.Item()
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	if !closeEnough(v, 3.5) {
		t.Errorf("got %g, want 3.5", v)
	}

	m := mustTensor(t, []int{2}, []float32{1, 2})
	if _, err := m.Item(); err == nil {
		t.Error("expected error for multi-element tensor")
	}
}
