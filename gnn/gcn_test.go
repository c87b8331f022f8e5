package gnn

import (
	"testing"

	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
)

func testBatch(t *testing.T, numGraphs, featureDim int) *graph.Batch {
	t.Helper()

	graphs := make([]*graph.Graph, numGraphs)
	for i := range graphs {
		feats := make([]float32, 3*featureDim)
		for j := range feats {
			feats[j] = float32(i + 1)
		}
		featT, err := tensor.NewTensor([]int{3, featureDim}, tensor.Float32, feats)
		if err != nil {
			t.Fatalf("failed to create features: %v", err)
		}
		graphs[i] = &graph.Graph{
			NumNodes:  3,
			Src:       []int32{0, 1},
			Dst:       []int32{1, 2},
			NodeFeats: featT,
		}
	}

	b, err := graph.NewBatch(graphs)
	if err != nil {
		t.Fatalf("failed to batch graphs: %v", err)
	}
	return b
}

func TestGCNForwardShape(t *testing.T) {
	model, err := NewGCN(4, 8, 6, 2, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	b := testBatch(t, 3, 4)
	logits, err := model.Forward(b, nil)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if logits.Shape[0] != 3 || logits.Shape[1] != 6 {
		t.Errorf("got logits shape %v, want [3 6]", logits.Shape)
	}
}

func TestGCNForwardTaskMask(t *testing.T) {
	model, err := NewGCN(2, 4, 4, 1, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	b := testBatch(t, 2, 2)
	mask, err := tensor.NewTensor([]int{4}, tensor.Float32, []float32{0, 1, 1, 0})
	if err != nil {
		t.Fatalf("failed to create mask: %v", err)
	}

	logits, err := model.Forward(b, mask)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	data, err := logits.GetFloat32Data()
	if err != nil {
		t.Fatalf("failed to read logits: %v", err)
	}

	// Blocked classes must be driven far below every allowed class.
	for row := 0; row < 2; row++ {
		for _, blocked := range []int{0, 3} {
			if data[row*4+blocked] > -1e8 {
				t.Errorf("row %d class %d not masked: %g", row, blocked, data[row*4+blocked])
			}
		}
		for _, allowed := range []int{1, 2} {
			if data[row*4+allowed] < -1e8 {
				t.Errorf("row %d class %d wrongly masked: %g", row, allowed, data[row*4+allowed])
			}
		}
	}
}

func TestGCNForwardMaskShapeError(t *testing.T) {
	model, err := NewGCN(2, 4, 4, 1, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	b := testBatch(t, 1, 2)
	badMask, err := tensor.NewTensor([]int{3}, tensor.Float32, []float32{1, 1, 1})
	if err != nil {
		t.Fatalf("failed to create mask: %v", err)
	}

	if _, err := model.Forward(b, badMask); err == nil {
		t.Error("expected error for mask width mismatch")
	}
}

func TestGCNForwardFeatureWidthError(t *testing.T) {
	model, err := NewGCN(5, 4, 2, 1, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	b := testBatch(t, 1, 2)
	if _, err := model.Forward(b, nil); err == nil {
		t.Error("expected error for feature width mismatch")
	}
}

func TestGCNNamedParameters(t *testing.T) {
	model, err := NewGCN(2, 4, 3, 2, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	params := model.NamedParameters()
	want := []string{"conv1.weight", "conv1.bias", "conv2.weight", "conv2.bias", "head.weight", "head.bias"}
	if len(params) != len(want) {
		t.Fatalf("got %d parameters, want %d", len(params), len(want))
	}
	for i, np := range params {
		if np.Name != want[i] {
			t.Errorf("parameter %d named %q, want %q", i, np.Name, want[i])
		}
		if !np.Value.RequiresGrad() {
			t.Errorf("parameter %q does not require gradients", np.Name)
		}
	}
}

func TestGCNTrainingMode(t *testing.T) {
	model, err := NewGCN(2, 4, 2, 1, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	if !model.IsTraining() {
		t.Error("new model should start in training mode")
	}
	model.Eval()
	if model.IsTraining() {
		t.Error("eval mode not applied")
	}
	model.Train()
	if !model.IsTraining() {
		t.Error("train mode not applied")
	}
}

func TestGCNGradientsFlow(t *testing.T) {
	model, err := NewGCN(2, 4, 2, 1, 1)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	b := testBatch(t, 2, 2)
	logits, err := model.Forward(b, nil)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	target, err := tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})
	if err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	loss, err := tensor.SparseCrossEntropy(logits, target)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	// Head parameters always receive gradients from the loss.
	for _, np := range model.NamedParameters() {
		if np.Name == "head.weight" || np.Name == "head.bias" {
			if np.Value.Grad() == nil {
				t.Errorf("parameter %q received no gradient", np.Name)
			}
		}
	}
}
