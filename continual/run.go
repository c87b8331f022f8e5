package continual

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// TaskMetrics summarizes the final training epoch of one task.
type TaskMetrics struct {
	Task     int
	Name     string
	Loss     float64
	Accuracy float64
}

// Run trains the model over every task of the scenario in order. Each task
// is trained for the configured number of epochs under the consolidation
// penalty of all previously completed tasks, then its Fisher information is
// recorded into state. The returned slice holds one entry per task with the
// metrics of its last epoch.
func (t *Trainer) Run(scenario *Scenario, state *State) ([]TaskMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %v", err)
	}

	results := make([]TaskMetrics, 0, len(scenario.Tasks))

	for i, task := range scenario.Tasks {
		mask, err := scenario.TaskMask(i)
		if err != nil {
			return nil, err
		}

		logger := t.Logger()
		logger.Info().Int("task", i).Str("name", task.Name).Int("samples", task.Dataset.Len()).Msg("task training started")

		metrics, err := t.trainTask(i, task, mask, state)
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): %v", i, task.Name, err)
		}

		if err := t.OnTaskComplete(i, task.Dataset, mask, state); err != nil {
			return nil, fmt.Errorf("task %d (%s) completion: %v", i, task.Name, err)
		}

		results = append(results, metrics)
	}

	return results, nil
}

func (t *Trainer) trainTask(taskID int, task Task, mask *tensor.Tensor, state *State) (TaskMetrics, error) {
	t.Model().Train()

	epochs := t.Config().Epochs
	var finalLoss, finalAcc float64

	for epoch := 0; epoch < epochs; epoch++ {
		t.ApplySchedule(epoch)

		loader, err := t.PrepareLoader(task.Dataset, mask)
		if err != nil {
			return TaskMetrics{}, fmt.Errorf("epoch %d loader: %v", epoch, err)
		}

		var bar *progressbar.ProgressBar
		if t.showProgress {
			bar = progressbar.NewOptions(loader.Len(),
				progressbar.OptionSetDescription(fmt.Sprintf("task %d epoch %d/%d", taskID, epoch+1, epochs)),
				progressbar.OptionShowCount(),
			)
		}

		var acc training.MetricAccumulator
		start := time.Now()

		batches := loader.Iterator()
		for batch := range batches {
			result, err := t.TrainStep(batch, state)
			if err != nil {
				// Drain the channel so the producing goroutine can exit.
				for range batches {
				}
				return TaskMetrics{}, fmt.Errorf("epoch %d: %v", epoch, err)
			}
			acc.Add(result)

			if bar != nil {
				_ = bar.Add(1)
			}
		}
		if err := loader.Err(); err != nil {
			return TaskMetrics{}, fmt.Errorf("epoch %d batch load: %v", epoch, err)
		}

		if bar != nil {
			_ = bar.Finish()
		}

		em := acc.Epoch(epoch, time.Since(start))
		finalLoss, finalAcc = em.Loss, em.Accuracy

		logger := t.Logger()
		logger.Info().
			Int("task", taskID).
			Int("epoch", em.Epoch).
			Float64("loss", em.Loss).
			Float64("accuracy", em.Accuracy).
			Int("batches", em.BatchCount).
			Dur("elapsed", em.Duration).
			Msg("epoch finished")
	}

	return TaskMetrics{Task: taskID, Name: task.Name, Loss: finalLoss, Accuracy: finalAcc}, nil
}
