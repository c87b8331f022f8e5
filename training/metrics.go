package training

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lanternml/graphcl/tensor"
)

// StepResult reports one training step for aggregation by the caller.
type StepResult struct {
	Loss     float64
	Accuracy float64
	NumItems int
}

// EpochMetrics summarizes one epoch of training.
type EpochMetrics struct {
	Epoch      int
	Loss       float64
	Accuracy   float64
	BatchCount int
	Duration   time.Duration
}

// Accuracy computes classification accuracy from logits [batch, classes]
// and Int32 targets [batch].
func Accuracy(output, target *tensor.Tensor) (float64, error) {
	if output.DType != tensor.Float32 || target.DType != tensor.Int32 {
		return 0, fmt.Errorf("accuracy requires Float32 output and Int32 target")
	}
	if len(output.Shape) != 2 || len(target.Shape) != 1 {
		return 0, fmt.Errorf("accuracy requires 2D output and 1D target, got %v and %v", output.Shape, target.Shape)
	}

	batchSize := output.Shape[0]
	numClasses := output.Shape[1]
	if target.Shape[0] != batchSize {
		return 0, fmt.Errorf("batch size mismatch: output %d, target %d", batchSize, target.Shape[0])
	}

	outputData := output.Data.([]float32)
	targetData := target.Data.([]int32)

	correct := 0
	for i := 0; i < batchSize; i++ {
		maxIdx := 0
		maxVal := outputData[i*numClasses]
		for j := 1; j < numClasses; j++ {
			if outputData[i*numClasses+j] > maxVal {
				maxVal = outputData[i*numClasses+j]
				maxIdx = j
			}
		}
		if int32(maxIdx) == targetData[i] {
			correct++
		}
	}

	return float64(correct) / float64(batchSize), nil
}

// MetricAccumulator aggregates step results into item-weighted epoch means.
type MetricAccumulator struct {
	losses  []float64
	accs    []float64
	weights []float64
	batches int
}

// Add records one step result.
func (ma *MetricAccumulator) Add(r StepResult) {
	ma.losses = append(ma.losses, r.Loss)
	ma.accs = append(ma.accs, r.Accuracy)
	ma.weights = append(ma.weights, float64(r.NumItems))
	ma.batches++
}

// TotalItems returns the number of items seen so far.
func (ma *MetricAccumulator) TotalItems() int {
	return int(floats.Sum(ma.weights))
}

// BatchCount returns the number of recorded steps.
func (ma *MetricAccumulator) BatchCount() int {
	return ma.batches
}

// Summarize returns the item-weighted mean loss and accuracy.
func (ma *MetricAccumulator) Summarize() (loss, accuracy float64) {
	if len(ma.losses) == 0 {
		return 0, 0
	}
	return stat.Mean(ma.losses, ma.weights), stat.Mean(ma.accs, ma.weights)
}

// Epoch packages the accumulated results as the summary of one epoch.
func (ma *MetricAccumulator) Epoch(epoch int, duration time.Duration) EpochMetrics {
	loss, accuracy := ma.Summarize()
	return EpochMetrics{
		Epoch:      epoch,
		Loss:       loss,
		Accuracy:   accuracy,
		BatchCount: ma.batches,
		Duration:   duration,
	}
}
