// Package continual implements regularization-based continual learning for
// graph classification. After each task the trainer records the model's
// parameter values together with a diagonal Fisher-information estimate of
// their importance; on later tasks a quadratic penalty discourages drift of
// important parameters away from their recorded values, mitigating
// catastrophic forgetting.
package continual

import (
	"errors"
	"fmt"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// ErrEmptyTaskDataset is returned when Fisher estimation sees zero labeled
// items; no meaningful importance estimate exists for an empty task.
var ErrEmptyTaskDataset = errors.New("no labeled items in task dataset")

// ErrShapeMismatch is returned when a historical parameter record disagrees
// in shape with the live model, which indicates the architecture changed
// between tasks.
var ErrShapeMismatch = errors.New("parameter shape mismatch against history")

// State is the per-run continual-learning record: one parameter snapshot
// and one Fisher estimate per completed task, index-aligned and
// append-only. It is owned by a single trainer and must not be shared
// across concurrent trainers.
type State struct {
	snapshots []training.ParamMap
	fishers   []training.ParamMap
}

// NewState returns an empty State for the start of a run.
func NewState() *State {
	return &State{}
}

// TaskCount returns the number of completed tasks recorded so far.
func (s *State) TaskCount() int {
	return len(s.snapshots)
}

// Snapshot returns the parameter snapshot for completed task i.
func (s *State) Snapshot(i int) training.ParamMap {
	return s.snapshots[i]
}

// Fisher returns the Fisher estimate for completed task i.
func (s *State) Fisher(i int) training.ParamMap {
	return s.fishers[i]
}

// Append records one completed task. The snapshot and Fisher estimate must
// cover the same parameter names with pairwise matching shapes; the pair is
// appended atomically, so a validation failure leaves the state untouched.
func (s *State) Append(snapshot, fisher training.ParamMap) error {
	if len(snapshot) != len(fisher) {
		return fmt.Errorf("snapshot has %d parameters, fisher has %d", len(snapshot), len(fisher))
	}

	for name, sv := range snapshot {
		fv, ok := fisher[name]
		if !ok {
			return fmt.Errorf("fisher estimate missing parameter %q", name)
		}
		if !tensor.ShapesEqual(sv.Shape, fv.Shape) {
			return fmt.Errorf("parameter %q: snapshot shape %v vs fisher shape %v: %w", name, sv.Shape, fv.Shape, ErrShapeMismatch)
		}
	}

	s.snapshots = append(s.snapshots, snapshot)
	s.fishers = append(s.fishers, fisher)
	return nil
}
