package training

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/lanternml/graphcl/tensor"
)

// BaseTrainer bundles the collaborators shared by every trainer built on
// this package: the model, optimizer, loss function, configuration, logger
// and optional LR scheduler. Specialized trainers embed it and layer their
// own per-step and per-task behavior on top.
type BaseTrainer struct {
	model     Model
	optimizer Optimizer
	criterion Loss
	config    Config
	logger    zerolog.Logger
	scheduler LRScheduler
	baseLR    float64
	rng       *rand.Rand
	afterTask []func(taskID int, model Model) error
}

// NewBaseTrainer creates a BaseTrainer.
func NewBaseTrainer(model Model, optimizer Optimizer, criterion Loss, config Config, logger zerolog.Logger) *BaseTrainer {
	return &BaseTrainer{
		model:     model,
		optimizer: optimizer,
		criterion: criterion,
		config:    config,
		logger:    logger,
		baseLR:    optimizer.GetLR(),
		rng:       rand.New(rand.NewSource(config.Seed)),
	}
}

// Model returns the trained model.
func (b *BaseTrainer) Model() Model { return b.model }

// Optimizer returns the optimizer.
func (b *BaseTrainer) Optimizer() Optimizer { return b.optimizer }

// Criterion returns the loss function.
func (b *BaseTrainer) Criterion() Loss { return b.criterion }

// Config returns the training configuration.
func (b *BaseTrainer) Config() Config { return b.config }

// Logger returns the trainer's logger.
func (b *BaseTrainer) Logger() zerolog.Logger { return b.logger }

// SetScheduler installs a learning rate scheduler applied at every epoch
// boundary.
func (b *BaseTrainer) SetScheduler(s LRScheduler) {
	b.scheduler = s
}

// ApplySchedule updates the optimizer's learning rate for the given epoch.
func (b *BaseTrainer) ApplySchedule(epoch int) {
	if b.scheduler == nil {
		return
	}
	lr := b.scheduler.GetLR(epoch, b.baseLR)
	b.optimizer.SetLR(lr)
	b.logger.Debug().Str("scheduler", b.scheduler.GetName()).Int("epoch", epoch).Float64("lr", lr).Msg("learning rate updated")
}

// OnAfterTask registers a hook invoked by ProcessAfterTraining once per
// finished task, after logging. Hooks run in registration order.
func (b *BaseTrainer) OnAfterTask(fn func(taskID int, model Model) error) {
	b.afterTask = append(b.afterTask, fn)
}

// PrepareLoader builds the training loader for a task dataset. taskMask may
// be nil.
func (b *BaseTrainer) PrepareLoader(dataset Dataset, taskMask *tensor.Tensor) (*GraphLoader, error) {
	loader, err := NewGraphLoader(dataset, b.config.BatchSize, true, taskMask, b.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %v", err)
	}
	return loader, nil
}

// ProcessAfterTraining is the base end-of-task hook: it logs completion and
// runs any registered hooks. Trainers that add their own end-of-task work
// must call this first.
func (b *BaseTrainer) ProcessAfterTraining(taskID int, dataset Dataset) error {
	b.logger.Info().Int("task", taskID).Int("samples", dataset.Len()).Msg("task training finished")

	for _, fn := range b.afterTask {
		if err := fn(taskID, b.model); err != nil {
			return fmt.Errorf("after-task hook failed for task %d: %v", taskID, err)
		}
	}
	return nil
}
