package training

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
)

// Loss maps predictions and targets to a single-element tensor attached to
// the autograd graph, so that the returned value can participate in
// backpropagation together with any regularization terms added on top.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// CrossEntropyLoss implements mean softmax cross-entropy for classification.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward computes the loss for logits [batch, classes] against Int32 class
// indices [batch].
func (ce *CrossEntropyLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	loss, err := tensor.SparseCrossEntropy(predicted, target)
	if err != nil {
		return nil, fmt.Errorf("cross entropy failed: %v", err)
	}
	return loss, nil
}
