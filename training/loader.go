package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/lanternml/graphcl/graph"
	"github.com/lanternml/graphcl/tensor"
)

// Dataset supplies individual labeled graphs.
type Dataset interface {
	Len() int                                           // Total number of samples
	Get(idx int) (g *graph.Graph, label int32, err error) // Returns a single sample
}

// Batch is one training batch: a batched graph, its Int32 labels [n], and
// the optional task mask [numClasses] shared by every sample in the batch.
type Batch struct {
	Graph    *graph.Batch
	Labels   *tensor.Tensor
	TaskMask *tensor.Tensor
}

// NumItems returns the number of labeled items in the batch (the first
// dimension of the label tensor).
func (b *Batch) NumItems() int {
	return b.Labels.Shape[0]
}

// GraphLoader provides batching and shuffling over a graph dataset.
type GraphLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	taskMask  *tensor.Tensor
	rng       *rand.Rand
	indices   []int
	position  int
	err       error
	mutex     sync.Mutex
}

// NewGraphLoader creates a loader over dataset. taskMask may be nil; when
// set it is attached unchanged to every produced batch.
func NewGraphLoader(dataset Dataset, batchSize int, shuffle bool, taskMask *tensor.Tensor, rng *rand.Rand) (*GraphLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &GraphLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		taskMask:  taskMask,
		rng:       rng,
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch.
func (dl *GraphLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset restarts the loader for a new epoch, reshuffling when enabled.
func (dl *GraphLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := dl.rng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// Next returns the next batch, or nil when the epoch is complete.
func (dl *GraphLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}

	return batch, nil
}

// HasNext reports whether more batches remain in the current epoch.
func (dl *GraphLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

func (dl *GraphLoader) loadBatch(indices []int) (*Batch, error) {
	graphs := make([]*graph.Graph, 0, len(indices))
	labels := make([]int32, 0, len(indices))

	for _, idx := range indices {
		g, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		graphs = append(graphs, g)
		labels = append(labels, label)
	}

	batched, err := graph.NewBatch(graphs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch graphs: %v", err)
	}

	labelT, err := tensor.NewTensor([]int{len(labels)}, tensor.Int32, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to create label tensor: %v", err)
	}

	return &Batch{
		Graph:    batched,
		Labels:   labelT,
		TaskMask: dl.taskMask,
	}, nil
}

// Iterator returns a channel over one epoch of batches for use in range
// loops, resetting the loader first. The channel is closed at the end of
// the epoch or on the first load failure; after the channel is drained,
// Err reports whether the pass ended early. Consumers must drain the
// channel, otherwise the producing goroutine blocks.
func (dl *GraphLoader) Iterator() <-chan *Batch {
	batchChan := make(chan *Batch, 1)

	dl.mutex.Lock()
	dl.err = nil
	dl.mutex.Unlock()

	go func() {
		defer close(batchChan)

		dl.Reset()

		for dl.HasNext() {
			batch, err := dl.Next()
			if err != nil {
				dl.mutex.Lock()
				dl.err = err
				dl.mutex.Unlock()
				return
			}
			if batch == nil {
				break
			}
			batchChan <- batch
		}
	}()

	return batchChan
}

// Err returns the error that terminated the most recent Iterator pass, or
// nil if it ran to completion.
func (dl *GraphLoader) Err() error {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.err
}

// SimpleGraphDataset is an in-memory Dataset backed by slices.
type SimpleGraphDataset struct {
	graphs []*graph.Graph
	labels []int32
}

// NewSimpleGraphDataset creates a dataset from parallel graph and label
// slices.
func NewSimpleGraphDataset(graphs []*graph.Graph, labels []int32) (*SimpleGraphDataset, error) {
	if len(graphs) != len(labels) {
		return nil, fmt.Errorf("graphs and labels must have the same length: got %d and %d", len(graphs), len(labels))
	}
	return &SimpleGraphDataset{graphs: graphs, labels: labels}, nil
}

// Len returns the number of samples in the dataset.
func (ds *SimpleGraphDataset) Len() int {
	return len(ds.graphs)
}

// Get returns the sample at the given index.
func (ds *SimpleGraphDataset) Get(idx int) (*graph.Graph, int32, error) {
	if idx < 0 || idx >= len(ds.graphs) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.graphs))
	}
	return ds.graphs[idx], ds.labels[idx], nil
}

// RandomGraphDataset generates random labeled graphs for testing and demos.
// Each class biases node features toward a class-specific mean, so a
// classifier can learn to separate them.
type RandomGraphDataset struct {
	samples []*graph.Graph
	labels  []int32
}

// NewRandomGraphDataset creates a dataset of size random graphs drawn from
// the given classes.
func NewRandomGraphDataset(size, nodesPer, featureDim int, classes []int32, seed int64) (*RandomGraphDataset, error) {
	if size <= 0 || nodesPer <= 0 || featureDim <= 0 {
		return nil, fmt.Errorf("size, nodesPer and featureDim must be positive")
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("at least one class is required")
	}

	ds := &RandomGraphDataset{}
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < size; i++ {
		label := classes[rng.Intn(len(classes))]
		g, err := randomGraph(nodesPer, featureDim, label, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to generate sample %d: %v", i, err)
		}
		ds.samples = append(ds.samples, g)
		ds.labels = append(ds.labels, label)
	}

	return ds, nil
}

func randomGraph(n, featureDim int, label int32, rng *rand.Rand) (*graph.Graph, error) {
	// Class-dependent feature mean keeps the task learnable.
	featT, err := tensor.RandomNormal([]int{n, featureDim}, float32(label), 0.5, rng)
	if err != nil {
		return nil, err
	}

	// Ring edges plus a few random chords.
	var src, dst []int32
	for i := 0; i < n; i++ {
		src = append(src, int32(i))
		dst = append(dst, int32((i+1)%n))
	}
	for i := 0; i < n/2; i++ {
		src = append(src, int32(rng.Intn(n)))
		dst = append(dst, int32(rng.Intn(n)))
	}

	return &graph.Graph{
		NumNodes:  n,
		Src:       src,
		Dst:       dst,
		NodeFeats: featT,
	}, nil
}

// Len returns the size of the dataset.
func (ds *RandomGraphDataset) Len() int {
	return len(ds.samples)
}

// Get returns the sample at the given index.
func (ds *RandomGraphDataset) Get(idx int) (*graph.Graph, int32, error) {
	if idx < 0 || idx >= len(ds.samples) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.samples))
	}
	return ds.samples[idx], ds.labels[idx], nil
}
