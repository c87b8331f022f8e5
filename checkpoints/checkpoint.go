// Package checkpoints persists model weights and continual-learning history
// as JSON so a training run can be resumed or inspected after the fact.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lanternml/graphcl/continual"
	"github.com/lanternml/graphcl/tensor"
	"github.com/lanternml/graphcl/training"
)

// FormatVersion identifies the checkpoint layout; bump on breaking changes.
const FormatVersion = "1"

// WeightTensor is one serialized parameter tensor.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TaskRecord is the serialized snapshot/Fisher pair for one completed task.
type TaskRecord struct {
	Snapshot []WeightTensor `json:"snapshot"`
	Fisher   []WeightTensor `json:"fisher"`
}

// Metadata describes the run that produced a checkpoint.
type Metadata struct {
	RunID       string    `json:"run_id"`
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is a complete serializable training state: current model
// weights plus the per-task consolidation history.
type Checkpoint struct {
	Metadata Metadata       `json:"metadata"`
	Weights  []WeightTensor `json:"weights"`
	History  []TaskRecord   `json:"history"`
}

// FromModel captures the model's current parameters and the continual
// history into a checkpoint. state may be nil when no task has finished yet.
func FromModel(model training.Model, state *continual.State, description string) (*Checkpoint, error) {
	weights, err := encodeNamed(model.NamedParameters())
	if err != nil {
		return nil, fmt.Errorf("failed to encode model weights: %v", err)
	}

	cp := &Checkpoint{
		Metadata: Metadata{
			RunID:       uuid.New().String(),
			Version:     FormatVersion,
			CreatedAt:   time.Now().UTC(),
			Description: description,
		},
		Weights: weights,
	}

	if state != nil {
		for i := 0; i < state.TaskCount(); i++ {
			snap, err := encodeParamMap(state.Snapshot(i))
			if err != nil {
				return nil, fmt.Errorf("failed to encode task %d snapshot: %v", i, err)
			}
			fish, err := encodeParamMap(state.Fisher(i))
			if err != nil {
				return nil, fmt.Errorf("failed to encode task %d fisher estimate: %v", i, err)
			}
			cp.History = append(cp.History, TaskRecord{Snapshot: snap, Fisher: fish})
		}
	}

	return cp, nil
}

// Save writes the checkpoint to path as JSON.
func (cp *Checkpoint) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint from path.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer f.Close()

	var cp Checkpoint
	if err := json.NewDecoder(f).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	if cp.Metadata.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %q, want %q", cp.Metadata.Version, FormatVersion)
	}
	return &cp, nil
}

// RestoreModel writes the checkpoint's weights back into the model in
// place. Every model parameter must be present in the checkpoint with a
// matching shape.
func (cp *Checkpoint) RestoreModel(model training.Model) error {
	byName := make(map[string]WeightTensor, len(cp.Weights))
	for _, w := range cp.Weights {
		byName[w.Name] = w
	}

	for _, np := range model.NamedParameters() {
		w, ok := byName[np.Name]
		if !ok {
			return fmt.Errorf("checkpoint missing parameter %q", np.Name)
		}
		if !tensor.ShapesEqual(w.Shape, np.Value.Shape) {
			return fmt.Errorf("parameter %q: checkpoint shape %v vs model shape %v", np.Name, w.Shape, np.Value.Shape)
		}
		if err := np.Value.SetData(append([]float32{}, w.Data...)); err != nil {
			return fmt.Errorf("failed to restore parameter %q: %v", np.Name, err)
		}
	}
	return nil
}

// RestoreState rebuilds the continual-learning history recorded in the
// checkpoint.
func (cp *Checkpoint) RestoreState() (*continual.State, error) {
	state := continual.NewState()
	for i, record := range cp.History {
		snap, err := decodeParamMap(record.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to decode task %d snapshot: %v", i, err)
		}
		fish, err := decodeParamMap(record.Fisher)
		if err != nil {
			return nil, fmt.Errorf("failed to decode task %d fisher estimate: %v", i, err)
		}
		if err := state.Append(snap, fish); err != nil {
			return nil, fmt.Errorf("failed to rebuild task %d history: %v", i, err)
		}
	}
	return state, nil
}

func encodeNamed(params []training.NamedParam) ([]WeightTensor, error) {
	out := make([]WeightTensor, 0, len(params))
	for _, np := range params {
		w, err := encodeTensor(np.Name, np.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// encodeParamMap sorts by name so checkpoint files are deterministic.
func encodeParamMap(params training.ParamMap) ([]WeightTensor, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]WeightTensor, 0, len(names))
	for _, name := range names {
		w, err := encodeTensor(name, params[name])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func encodeTensor(name string, t *tensor.Tensor) (WeightTensor, error) {
	data, err := t.GetFloat32Data()
	if err != nil {
		return WeightTensor{}, fmt.Errorf("parameter %q: %v", name, err)
	}
	return WeightTensor{
		Name:  name,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float32{}, data...),
	}, nil
}

func decodeParamMap(weights []WeightTensor) (training.ParamMap, error) {
	out := make(training.ParamMap, len(weights))
	for _, w := range weights {
		t, err := tensor.NewTensor(w.Shape, tensor.Float32, append([]float32{}, w.Data...))
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %v", w.Name, err)
		}
		out[w.Name] = t
	}
	return out, nil
}
