// Package gnn implements a small graph convolutional network for
// graph-level classification: stacked GCN layers over the normalized
// batched adjacency, mean readout per graph, and a linear classification
// head with optional task-mask restriction of the output classes.
package gnn

import (
	"fmt"
	"math/rand"

	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// graphConv is one GCN layer: H' = ReLU(Â H W + b).
type graphConv struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

func newGraphConv(inputDim, outputDim int, rng *rand.Rand) (*graphConv, error) {
	weight, err := tensor.XavierUniform([]int{inputDim, outputDim}, inputDim, outputDim, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create conv weight: %v", err)
	}
	weight.SetRequiresGrad(true)

	bias, err := tensor.Zeros([]int{outputDim}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create conv bias: %v", err)
	}
	bias.SetRequiresGrad(true)

	return &graphConv{weight: weight, bias: bias}, nil
}

func (c *graphConv) forward(adj, x *tensor.Tensor) (*tensor.Tensor, error) {
	xw, err := tensor.MatMulAutograd(x, c.weight)
	if err != nil {
		return nil, fmt.Errorf("feature transform failed: %v", err)
	}
	propagated, err := tensor.MatMulAutograd(adj, xw)
	if err != nil {
		return nil, fmt.Errorf("message propagation failed: %v", err)
	}
	biased, err := tensor.AddAutograd(propagated, c.bias)
	if err != nil {
		return nil, fmt.Errorf("bias addition failed: %v", err)
	}
	return tensor.ReLUAutograd(biased)
}

// GCN is a graph classifier implementing training.Model.
type GCN struct {
	convs      []*graphConv
	headWeight *tensor.Tensor
	headBias   *tensor.Tensor
	inputDim   int
	numClasses int
	training   bool
}

// NewGCN creates a GCN with numLayers graph convolutions of width
// hiddenDim followed by a linear head over numClasses.
func NewGCN(inputDim, hiddenDim, numClasses, numLayers int, seed int64) (*GCN, error) {
	if numLayers <= 0 {
		return nil, fmt.Errorf("numLayers must be positive, got %d", numLayers)
	}
	if inputDim <= 0 || hiddenDim <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	rng := rand.New(rand.NewSource(seed))

	g := &GCN{
		inputDim:   inputDim,
		numClasses: numClasses,
		training:   true,
	}

	dim := inputDim
	for i := 0; i < numLayers; i++ {
		conv, err := newGraphConv(dim, hiddenDim, rng)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %v", i, err)
		}
		g.convs = append(g.convs, conv)
		dim = hiddenDim
	}

	headWeight, err := tensor.XavierUniform([]int{dim, numClasses}, dim, numClasses, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create head weight: %v", err)
	}
	headWeight.SetRequiresGrad(true)
	g.headWeight = headWeight

	headBias, err := tensor.Zeros([]int{numClasses}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create head bias: %v", err)
	}
	headBias.SetRequiresGrad(true)
	g.headBias = headBias

	return g, nil
}

// Forward produces logits [numGraphs, numClasses] for a batched graph. When
// taskMask is non-nil, logits of classes outside the mask are pushed to a
// large negative value so that both the loss and the argmax are restricted
// to the task's classes.
func (g *GCN) Forward(b *graph.Batch, taskMask *tensor.Tensor) (*tensor.Tensor, error) {
	if b.NodeFeats == nil {
		return nil, fmt.Errorf("gcn requires node features")
	}
	if b.NodeFeats.Shape[1] != g.inputDim {
		return nil, fmt.Errorf("node feature width %d does not match model input dim %d", b.NodeFeats.Shape[1], g.inputDim)
	}

	x := b.NodeFeats
	var err error
	for i, conv := range g.convs {
		x, err = conv.forward(b.Adj, x)
		if err != nil {
			return nil, fmt.Errorf("conv%d forward failed: %v", i+1, err)
		}
	}

	pooled, err := tensor.SegmentMean(x, b.Segments, b.NumGraphs)
	if err != nil {
		return nil, fmt.Errorf("readout failed: %v", err)
	}

	scores, err := tensor.MatMulAutograd(pooled, g.headWeight)
	if err != nil {
		return nil, fmt.Errorf("head transform failed: %v", err)
	}
	logits, err := tensor.AddAutograd(scores, g.headBias)
	if err != nil {
		return nil, fmt.Errorf("head bias failed: %v", err)
	}

	if taskMask != nil {
		maskBias, err := g.maskBias(taskMask)
		if err != nil {
			return nil, err
		}
		logits, err = tensor.AddAutograd(logits, maskBias)
		if err != nil {
			return nil, fmt.Errorf("task mask application failed: %v", err)
		}
	}

	return logits, nil
}

// maskBias converts a 0/1 class mask into an additive bias: 0 for allowed
// classes, -1e9 for the rest.
func (g *GCN) maskBias(taskMask *tensor.Tensor) (*tensor.Tensor, error) {
	if len(taskMask.Shape) != 1 || taskMask.Shape[0] != g.numClasses {
		return nil, fmt.Errorf("task mask must be [%d], got shape %v", g.numClasses, taskMask.Shape)
	}

	maskData, err := taskMask.GetFloat32Data()
	if err != nil {
		return nil, fmt.Errorf("task mask: %v", err)
	}

	bias, err := tensor.Full([]int{g.numClasses}, -1e9)
	if err != nil {
		return nil, fmt.Errorf("task mask bias: %v", err)
	}
	biasData, err := bias.GetFloat32Data()
	if err != nil {
		return nil, fmt.Errorf("task mask bias: %v", err)
	}
	for i, m := range maskData {
		if m != 0 {
			biasData[i] = 0
		}
	}
	return bias, nil
}

// NamedParameters returns the trainable parameters with stable names.
func (g *GCN) NamedParameters() []training.NamedParam {
	var params []training.NamedParam
	for i, conv := range g.convs {
		params = append(params,
			training.NamedParam{Name: fmt.Sprintf("conv%d.weight", i+1), Value: conv.weight},
			training.NamedParam{Name: fmt.Sprintf("conv%d.bias", i+1), Value: conv.bias},
		)
	}
	params = append(params,
		training.NamedParam{Name: "head.weight", Value: g.headWeight},
		training.NamedParam{Name: "head.bias", Value: g.headBias},
	)
	return params
}

// Train sets the model to training mode.
func (g *GCN) Train() {
	g.training = true
}

// Eval sets the model to evaluation mode.
func (g *GCN) Eval() {
	g.training = false
}

// IsTraining returns true if in training mode.
func (g *GCN) IsTraining() bool {
	return g.training
}

// NumClasses returns the width of the classification head.
func (g *GCN) NumClasses() int {
	return g.numClasses
}
