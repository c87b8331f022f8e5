package continual

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// Task is one stage of a continual-learning scenario: a dataset and the
// output classes it covers.
type Task struct {
	Name    string
	Dataset training.Dataset
	Classes []int32
}

// Scenario is an ordered sequence of tasks sharing one output space of
// NumClasses classes.
type Scenario struct {
	NumClasses int
	Tasks      []Task
}

// Validate checks that every task's classes fall inside the output space.
func (s *Scenario) Validate() error {
	if s.NumClasses <= 0 {
		return fmt.Errorf("scenario must have a positive class count, got %d", s.NumClasses)
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("scenario has no tasks")
	}
	for i, task := range s.Tasks {
		if task.Dataset == nil {
			return fmt.Errorf("task %d has no dataset", i)
		}
		if len(task.Classes) == 0 {
			return fmt.Errorf("task %d has no classes", i)
		}
		for _, c := range task.Classes {
			if c < 0 || int(c) >= s.NumClasses {
				return fmt.Errorf("task %d class %d outside [0, %d)", i, c, s.NumClasses)
			}
		}
	}
	return nil
}

// TaskMask builds the 0/1 class mask for task i: 1 for the task's classes,
// 0 elsewhere.
func (s *Scenario) TaskMask(i int) (*tensor.Tensor, error) {
	if i < 0 || i >= len(s.Tasks) {
		return nil, fmt.Errorf("task index %d out of range [0, %d)", i, len(s.Tasks))
	}

	mask := make([]float32, s.NumClasses)
	for _, c := range s.Tasks[i].Classes {
		mask[c] = 1
	}
	return tensor.NewTensor([]int{s.NumClasses}, tensor.Float32, mask)
}
