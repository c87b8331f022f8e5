package continual

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// Penalty computes the consolidation loss
//
//	lambda * Σ_i Σ_p sum(fisher_i[p] * (param[p] - snapshot_i[p])²)
//
// over every completed task i in state. The returned single-element tensor
// is attached to the model's live autograd graph, so adding it to the task
// loss makes important parameters resist drifting from their recorded
// values. With empty history the result is exactly zero.
func Penalty(model training.Model, state *State, lambda float64) (*tensor.Tensor, error) {
	if state.TaskCount() == 0 {
		return tensor.FromScalar(0), nil
	}

	var total *tensor.Tensor

	for i := 0; i < state.TaskCount(); i++ {
		snapshot := state.Snapshot(i)
		fisher := state.Fisher(i)

		for _, np := range model.NamedParameters() {
			snap, ok := snapshot[np.Name]
			if !ok {
				return nil, fmt.Errorf("task %d snapshot missing parameter %q", i, np.Name)
			}
			fish, ok := fisher[np.Name]
			if !ok {
				return nil, fmt.Errorf("task %d fisher estimate missing parameter %q", i, np.Name)
			}
			if !tensor.ShapesEqual(snap.Shape, np.Value.Shape) {
				return nil, fmt.Errorf("task %d parameter %q: snapshot shape %v vs live shape %v: %w", i, np.Name, snap.Shape, np.Value.Shape, ErrShapeMismatch)
			}
			if !tensor.ShapesEqual(fish.Shape, np.Value.Shape) {
				return nil, fmt.Errorf("task %d parameter %q: fisher shape %v vs live shape %v: %w", i, np.Name, fish.Shape, np.Value.Shape, ErrShapeMismatch)
			}

			diff, err := tensor.SubAutograd(np.Value, snap)
			if err != nil {
				return nil, fmt.Errorf("penalty drift for %q failed: %v", np.Name, err)
			}
			sq, err := tensor.MulAutograd(diff, diff)
			if err != nil {
				return nil, fmt.Errorf("penalty square for %q failed: %v", np.Name, err)
			}
			weighted, err := tensor.MulAutograd(sq, fish)
			if err != nil {
				return nil, fmt.Errorf("penalty weighting for %q failed: %v", np.Name, err)
			}
			term, err := tensor.SumAutograd(weighted)
			if err != nil {
				return nil, fmt.Errorf("penalty reduction for %q failed: %v", np.Name, err)
			}

			if total == nil {
				total = term
				continue
			}
			total, err = tensor.AddAutograd(total, term)
			if err != nil {
				return nil, fmt.Errorf("penalty accumulation failed: %v", err)
			}
		}
	}

	if total == nil {
		return tensor.FromScalar(0), nil
	}

	scaled, err := tensor.ScaleAutograd(total, lambda)
	if err != nil {
		return nil, fmt.Errorf("penalty scaling failed: %v", err)
	}
	return scaled, nil
}
