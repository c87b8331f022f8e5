package tensor

import (
	"math"
	"testing"
)

func TestSparseCrossEntropyUniformLogits(t *testing.T) {
	// With uniform logits the loss is exactly ln(numClasses).
	logits := mustTensor(t, []int{2, 4}, make([]float32, 8))
	target, err := NewTensor([]int{2}, Int32, []int32{1, 3})
	if err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	loss, err := SparseCrossEntropy(logits, target)
	if err != nil {
		t.Fatalf("cross entropy failed: %v", err)
	}

	v, err := loss.Item()
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	want := float32(math.Log(4))
	if !closeEnough(v, want) {
		t.Errorf("got %g, want %g", v, want)
	}
}

func TestSparseCrossEntropyConfidentPrediction(t *testing.T) {
	// A large margin toward the correct class drives the loss toward zero.
	logits := mustTensor(t, []int{1, 3}, []float32{20, 0, 0})
	target, err := NewTensor([]int{1}, Int32, []int32{0})
	if err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	loss, err := SparseCrossEntropy(logits, target)
	if err != nil {
		t.Fatalf("cross entropy failed: %v", err)
	}
	v, err := loss.Item()
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	if v > 1e-4 {
		t.Errorf("loss %g should be near zero for a confident correct prediction", v)
	}
}

func TestSparseCrossEntropyBackward(t *testing.T) {
	logits := leafTensor(t, []int{1, 2}, []float32{0, 0})
	target, err := NewTensor([]int{1}, Int32, []int32{0})
	if err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	loss, err := SparseCrossEntropy(logits, target)
	if err != nil {
		t.Fatalf("cross entropy failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	// Gradient is softmax minus one-hot: [0.5 - 1, 0.5].
	checkGrad(t, logits, []float32{-0.5, 0.5})
}

func TestSparseCrossEntropyErrors(t *testing.T) {
	logits := mustTensor(t, []int{2, 3}, make([]float32, 6))

	t.Run("TargetOutOfRange", func(t *testing.T) {
		target, err := NewTensor([]int{2}, Int32, []int32{0, 3})
		if err != nil {
			t.Fatalf("failed to create target: %v", err)
		}
		if _, err := SparseCrossEntropy(logits, target); err == nil {
			t.Error("expected error for out-of-range target class")
		}
	})

	t.Run("BatchMismatch", func(t *testing.T) {
		target, err := NewTensor([]int{3}, Int32, []int32{0, 1, 2})
		if err != nil {
			t.Fatalf("failed to create target: %v", err)
		}
		if _, err := SparseCrossEntropy(logits, target); err == nil {
			t.Error("expected error for batch size mismatch")
		}
	})
}
