package continual

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// DefaultLambda is the default strength of the consolidation penalty.
const DefaultLambda = 10000.0

// Trainer trains a graph classifier across a sequence of tasks with
// elastic weight consolidation. The same trainer implements every
// incremental setting; the only behavioral difference is whether task
// masks are passed into the forward pass, which the task-incremental
// setting requires and the class/domain/time-incremental settings omit.
type Trainer struct {
	*training.BaseTrainer
	lambda       float64
	useTaskMasks bool
	showProgress bool
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLambda overrides the penalty strength.
func WithLambda(lambda float64) Option {
	return func(t *Trainer) {
		t.lambda = lambda
	}
}

// WithProgress enables a progress bar over training batches in Run.
func WithProgress() Option {
	return func(t *Trainer) {
		t.showProgress = true
	}
}

func newTrainer(base *training.BaseTrainer, useTaskMasks bool, opts []Option) *Trainer {
	t := &Trainer{
		BaseTrainer:  base,
		lambda:       DefaultLambda,
		useTaskMasks: useTaskMasks,
	}
	if base.Config().Lambda > 0 {
		t.lambda = base.Config().Lambda
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTaskILTrainer creates a trainer for the task-incremental setting,
// where task identity is available at inference time and forwarded to the
// model as a class mask.
func NewTaskILTrainer(base *training.BaseTrainer, opts ...Option) *Trainer {
	return newTrainer(base, true, opts)
}

// NewClassILTrainer creates a trainer for the class-incremental setting,
// where the model predicts over all classes seen so far without task
// identity.
func NewClassILTrainer(base *training.BaseTrainer, opts ...Option) *Trainer {
	return newTrainer(base, false, opts)
}

// NewDomainILTrainer creates a trainer for the domain-incremental setting.
// It behaves identically to the class-incremental trainer.
func NewDomainILTrainer(base *training.BaseTrainer, opts ...Option) *Trainer {
	return NewClassILTrainer(base, opts...)
}

// NewTimeILTrainer creates a trainer for the time-incremental setting.
// It behaves identically to the class-incremental trainer.
func NewTimeILTrainer(base *training.BaseTrainer, opts ...Option) *Trainer {
	return NewClassILTrainer(base, opts...)
}

// Lambda returns the configured penalty strength.
func (t *Trainer) Lambda() float64 {
	return t.lambda
}

// UsesTaskMasks reports whether the trainer forwards task masks into the
// model.
func (t *Trainer) UsesTaskMasks() bool {
	return t.useTaskMasks
}

// InitState returns an empty continual-learning state for a new run.
func (t *Trainer) InitState() *State {
	return NewState()
}

// inference runs the forward pass and loss the way ordinary training does.
// The Fisher estimation pass uses the same procedure.
func (t *Trainer) inference(batch *training.Batch) (preds, loss *tensor.Tensor, err error) {
	var mask *tensor.Tensor
	if t.useTaskMasks {
		mask = batch.TaskMask
	}

	preds, err = t.Model().Forward(batch.Graph, mask)
	if err != nil {
		return nil, nil, fmt.Errorf("forward pass failed: %v", err)
	}
	loss, err = t.Criterion().Forward(preds, batch.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("loss computation failed: %v", err)
	}
	return preds, loss, nil
}

// TrainStep runs one training step: forward, task loss plus consolidation
// penalty, backward, optimizer step, and metric computation. Any failure is
// fatal to the run and propagates to the caller.
func (t *Trainer) TrainStep(batch *training.Batch, state *State) (training.StepResult, error) {
	t.Optimizer().ZeroGrad()

	preds, loss, err := t.inference(batch)
	if err != nil {
		return training.StepResult{}, err
	}

	penalty, err := Penalty(t.Model(), state, t.lambda)
	if err != nil {
		return training.StepResult{}, fmt.Errorf("penalty computation failed: %v", err)
	}

	totalLoss, err := tensor.AddAutograd(loss, penalty)
	if err != nil {
		return training.StepResult{}, fmt.Errorf("loss combination failed: %v", err)
	}

	if err := totalLoss.Backward(); err != nil {
		return training.StepResult{}, fmt.Errorf("backward pass failed: %v", err)
	}
	if err := t.Optimizer().Step(); err != nil {
		return training.StepResult{}, fmt.Errorf("optimizer step failed: %v", err)
	}

	lossValue, err := totalLoss.Item()
	if err != nil {
		return training.StepResult{}, fmt.Errorf("failed to read loss value: %v", err)
	}

	accuracy, err := training.Accuracy(preds, batch.Labels)
	if err != nil {
		return training.StepResult{}, fmt.Errorf("accuracy computation failed: %v", err)
	}

	return training.StepResult{
		Loss:     float64(lossValue),
		Accuracy: accuracy,
		NumItems: batch.NumItems(),
	}, nil
}

// OnTaskComplete finishes a task: it invokes the base trainer's completion
// hook first, then estimates the Fisher information over the full task
// dataset and appends the snapshot/Fisher pair to state. A failed
// estimation aborts the completion without touching state.
func (t *Trainer) OnTaskComplete(taskID int, dataset training.Dataset, taskMask *tensor.Tensor, state *State) error {
	if err := t.ProcessAfterTraining(taskID, dataset); err != nil {
		return err
	}

	loader, err := t.PrepareLoader(dataset, taskMask)
	if err != nil {
		return fmt.Errorf("task %d fisher loader: %v", taskID, err)
	}

	snapshot, fisher, err := EstimateFisher(t.Model(), loader, t.Criterion(), t.useTaskMasks)
	if err != nil {
		return fmt.Errorf("task %d fisher estimation: %w", taskID, err)
	}

	if err := state.Append(snapshot, fisher); err != nil {
		return fmt.Errorf("task %d state append: %v", taskID, err)
	}

	logger := t.Logger()
	logger.Info().Int("task", taskID).Int("history", state.TaskCount()).Msg("fisher information recorded")
	return nil
}
