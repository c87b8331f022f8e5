package continual

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// paramModel exposes a fixed set of named parameters. Forward projects a
// per-graph constant through the parameter row so that every parameter is
// attached to the loss, and records the task mask it was given.
type paramModel struct {
	params   []training.NamedParam
	row      *tensor.Tensor // [1, C] logit row, also a parameter when set
	masks    []*tensor.Tensor
	forwards int
	training bool
}

func (m *paramModel) Forward(b *graph.Batch, taskMask *tensor.Tensor) (*tensor.Tensor, error) {
	m.masks = append(m.masks, taskMask)
	m.forwards++

	ones, err := tensor.Ones([]int{b.NumGraphs, 1}, tensor.Float32)
	if err != nil {
		return nil, err
	}
	return tensor.MatMulAutograd(ones, m.row)
}

func (m *paramModel) NamedParameters() []training.NamedParam { return m.params }
func (m *paramModel) Train()                                 { m.training = true }
func (m *paramModel) Eval()                                  { m.training = false }
func (m *paramModel) IsTraining() bool                       { return m.training }

// lastMask returns the mask seen by the most recent forward pass.
func (m *paramModel) lastMask() *tensor.Tensor {
	if len(m.masks) == 0 {
		return nil
	}
	return m.masks[len(m.masks)-1]
}

// newParamModel builds a paramModel with a single [1, numClasses] parameter
// named "row" initialized to the given values.
func newParamModel(t *testing.T, values []float32) *paramModel {
	t.Helper()

	row, err := tensor.NewTensor([]int{1, len(values)}, tensor.Float32, values)
	require.NoError(t, err)
	row.SetRequiresGrad(true)

	return &paramModel{
		params: []training.NamedParam{{Name: "row", Value: row}},
		row:    row,
	}
}

// scaledSumLoss ignores targets and returns factor * sum(pred), producing a
// constant gradient of factor on every logit.
type scaledSumLoss struct {
	factor float64
}

func (l *scaledSumLoss) Forward(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	total, err := tensor.SumAutograd(pred)
	if err != nil {
		return nil, err
	}
	return tensor.ScaleAutograd(total, l.factor)
}

func scalarParam(t *testing.T, name string, value float32) (training.NamedParam, *tensor.Tensor) {
	t.Helper()
	v, err := tensor.NewTensor([]int{1}, tensor.Float32, []float32{value})
	require.NoError(t, err)
	v.SetRequiresGrad(true)
	return training.NamedParam{Name: name, Value: v}, v
}

func scalarMap(t *testing.T, name string, value float32) training.ParamMap {
	t.Helper()
	v, err := tensor.NewTensor([]int{1}, tensor.Float32, []float32{value})
	require.NoError(t, err)
	return training.ParamMap{name: v}
}

func testDataset(t *testing.T, size int, classes []int32) training.Dataset {
	t.Helper()
	ds, err := training.NewRandomGraphDataset(size, 4, 2, classes, 1)
	require.NoError(t, err)
	return ds
}

func testLoader(t *testing.T, ds training.Dataset, batchSize int, mask *tensor.Tensor) *training.GraphLoader {
	t.Helper()
	loader, err := training.NewGraphLoader(ds, batchSize, false, mask, nil)
	require.NoError(t, err)
	return loader
}

func newTestBase(t *testing.T, model training.Model, lambda float64) *training.BaseTrainer {
	t.Helper()

	cfg := training.DefaultConfig()
	cfg.Epochs = 1
	cfg.BatchSize = 4
	cfg.Lambda = lambda

	optimizer := training.NewSGD(training.Parameters(model), cfg.LearningRate, 0, 0, false)
	return training.NewBaseTrainer(model, optimizer, training.NewCrossEntropyLoss(), cfg, zerolog.Nop())
}
