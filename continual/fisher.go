package continual

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// EstimateFisher computes the empirical diagonal Fisher information of the
// model over one task's training data, together with a snapshot of the
// parameter values. For every batch it clears gradients, runs the same
// inference as ordinary training (masked when useTaskMasks is set),
// backpropagates the loss, and accumulates the squared gradients weighted
// by the batch's item count; the accumulator is normalized by the total
// item count at the end. No optimizer step is taken.
//
// A parameter that never receives a gradient keeps a zero Fisher entry:
// without gradient signal its importance cannot be judged, and its drift
// goes unpenalized.
func EstimateFisher(model training.Model, loader *training.GraphLoader, criterion training.Loss, useTaskMasks bool) (training.ParamMap, training.ParamMap, error) {
	named := model.NamedParameters()

	params := make(training.ParamMap, len(named))
	fishers := make(training.ParamMap, len(named))
	for _, np := range named {
		zero, err := tensor.ZerosLike(np.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to allocate fisher accumulator for %q: %v", np.Name, err)
		}
		fishers[np.Name] = zero
	}

	totalItems := 0
	loader.Reset()

	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("fisher estimation failed to load batch: %v", err)
		}
		if batch == nil {
			break
		}

		tensor.ZeroGrad(training.Parameters(model))

		var mask *tensor.Tensor
		if useTaskMasks {
			mask = batch.TaskMask
		}
		preds, err := model.Forward(batch.Graph, mask)
		if err != nil {
			return nil, nil, fmt.Errorf("fisher estimation forward pass failed: %v", err)
		}
		loss, err := criterion.Forward(preds, batch.Labels)
		if err != nil {
			return nil, nil, fmt.Errorf("fisher estimation loss failed: %v", err)
		}
		if err := loss.Backward(); err != nil {
			return nil, nil, fmt.Errorf("fisher estimation backward pass failed: %v", err)
		}

		n := batch.NumItems()
		totalItems += n

		for _, np := range named {
			// The snapshot is overwritten on every batch, so the stored
			// values are the ones seen by the last batch of this pass.
			snap, err := np.Value.Detach()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to snapshot %q: %v", np.Name, err)
			}
			params[np.Name] = snap

			grad := np.Value.Grad()
			if grad == nil {
				continue
			}
			gradSq, err := tensor.Mul(grad, grad)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to square gradient of %q: %v", np.Name, err)
			}
			weighted, err := tensor.Scale(gradSq, float64(n))
			if err != nil {
				return nil, nil, fmt.Errorf("failed to weight gradient of %q: %v", np.Name, err)
			}
			updated, err := tensor.Add(fishers[np.Name], weighted)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to accumulate fisher of %q: %v", np.Name, err)
			}
			fishers[np.Name] = updated
		}
	}

	if totalItems == 0 {
		return nil, nil, fmt.Errorf("fisher estimation: %w", ErrEmptyTaskDataset)
	}

	count := tensor.FromScalar(float64(totalItems))
	for name, f := range fishers {
		normalized, err := tensor.Div(f, count)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to normalize fisher of %q: %v", name, err)
		}
		fishers[name] = normalized
	}

	return params, fishers, nil
}
