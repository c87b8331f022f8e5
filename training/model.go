package training

import (
	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
)

// NamedParam pairs a trainable tensor with a stable identifier such as
// "conv1.weight". Names must stay fixed for the lifetime of a model so that
// per-parameter records (snapshots, importance estimates, checkpoints) can
// be matched back to the live tensors.
type NamedParam struct {
	Name  string
	Value *tensor.Tensor
}

// ParamMap maps parameter names to tensors. Used for snapshots, importance
// estimates and checkpoint weight sets.
type ParamMap = map[string]*tensor.Tensor

// Model is a graph classifier trainable with this package. Forward consumes
// a batched graph and produces logits [numGraphs, numClasses]; when
// taskMask is non-nil ([numClasses], 1 for classes belonging to the current
// task) the model must restrict its output to those classes.
type Model interface {
	Forward(b *graph.Batch, taskMask *tensor.Tensor) (*tensor.Tensor, error)
	NamedParameters() []NamedParam
	Train()
	Eval()
	IsTraining() bool
}

// Parameters flattens a model's named parameters into a tensor slice, in
// declaration order.
func Parameters(m Model) []*tensor.Tensor {
	named := m.NamedParameters()
	params := make([]*tensor.Tensor, 0, len(named))
	for _, np := range named {
		params = append(params, np.Value)
	}
	return params
}
