package training

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
)

type noopModel struct{ training bool }

func (m *noopModel) Forward(b *graph.Batch, taskMask *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, fmt.Errorf("not implemented")
}
func (m *noopModel) NamedParameters() []NamedParam { return nil }
func (m *noopModel) Train()                        { m.training = true }
func (m *noopModel) Eval()                         { m.training = false }
func (m *noopModel) IsTraining() bool              { return m.training }

func newTestTrainer(t *testing.T) *BaseTrainer {
	t.Helper()
	model := &noopModel{}
	opt := NewSGD(nil, 0.1, 0, 0, false)
	return NewBaseTrainer(model, opt, NewCrossEntropyLoss(), DefaultConfig(), zerolog.Nop())
}

func TestBaseTrainerApplySchedule(t *testing.T) {
	trainer := newTestTrainer(t)

	// Without a scheduler the learning rate stays put.
	trainer.ApplySchedule(50)
	if lr := trainer.Optimizer().GetLR(); lr != 0.1 {
		t.Errorf("got lr %g, want 0.1", lr)
	}

	trainer.SetScheduler(NewStepLRScheduler(10, 0.5))
	trainer.ApplySchedule(10)
	if lr := trainer.Optimizer().GetLR(); lr != 0.05 {
		t.Errorf("got lr %g, want 0.05", lr)
	}
}

func TestBaseTrainerAfterTaskHooks(t *testing.T) {
	trainer := newTestTrainer(t)

	var order []int
	trainer.OnAfterTask(func(taskID int, m Model) error {
		order = append(order, 1)
		return nil
	})
	trainer.OnAfterTask(func(taskID int, m Model) error {
		order = append(order, 2)
		return nil
	})

	ds := smallDataset(t, 2)
	if err := trainer.ProcessAfterTraining(0, ds); err != nil {
		t.Fatalf("process after training failed: %v", err)
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("hooks ran in order %v, want [1 2]", order)
	}
}

func TestBaseTrainerHookFailureStops(t *testing.T) {
	trainer := newTestTrainer(t)

	secondRan := false
	trainer.OnAfterTask(func(taskID int, m Model) error {
		return fmt.Errorf("boom")
	})
	trainer.OnAfterTask(func(taskID int, m Model) error {
		secondRan = true
		return nil
	})

	if err := trainer.ProcessAfterTraining(0, smallDataset(t, 2)); err == nil {
		t.Fatal("expected hook failure to propagate")
	}
	if secondRan {
		t.Error("later hooks must not run after a failure")
	}
}

func TestBaseTrainerPrepareLoader(t *testing.T) {
	trainer := newTestTrainer(t)

	loader, err := trainer.PrepareLoader(smallDataset(t, 5), nil)
	if err != nil {
		t.Fatalf("prepare loader failed: %v", err)
	}
	want := (5 + trainer.Config().BatchSize - 1) / trainer.Config().BatchSize
	if loader.Len() != want {
		t.Errorf("got %d batches, want %d", loader.Len(), want)
	}
}
