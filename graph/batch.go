package graph

import (
	"fmt"
	"math"

	"github.com/lanternml/graphcl/tensor"
)

// Batch is the disjoint union of one or more graphs. Adj holds the dense
// symmetric-normalized adjacency with self loops over all batched nodes;
// Segments maps each node row to its source graph for pooled readout.
type Batch struct {
	NumNodes  int
	NumGraphs int
	Adj       *tensor.Tensor
	NodeFeats *tensor.Tensor
	EdgeFeats *tensor.Tensor
	Segments  []int32
}

// NewBatch combines graphs into a single batched graph. All graphs must
// agree on whether node/edge features are present and on their widths.
func NewBatch(graphs []*Graph) (*Batch, error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("cannot batch zero graphs")
	}

	totalNodes := 0
	totalEdges := 0
	for i, g := range graphs {
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("graph %d invalid: %v", i, err)
		}
		totalNodes += g.NumNodes
		totalEdges += g.NumEdges()
	}

	segments := make([]int32, 0, totalNodes)

	// Weighted adjacency with self loops: A + I, then D^-1/2 (A+I) D^-1/2.
	adj := make([]float32, totalNodes*totalNodes)
	offset := 0
	for gi, g := range graphs {
		for n := 0; n < g.NumNodes; n++ {
			segments = append(segments, int32(gi))
			idx := offset + n
			adj[idx*totalNodes+idx] = 1
		}
		for e := range g.Src {
			w := float32(1)
			if g.EdgeWeights != nil {
				w = g.EdgeWeights[e]
			}
			s := offset + int(g.Src[e])
			d := offset + int(g.Dst[e])
			adj[s*totalNodes+d] += w
			adj[d*totalNodes+s] += w
		}
		offset += g.NumNodes
	}

	degree := make([]float32, totalNodes)
	for i := 0; i < totalNodes; i++ {
		var sum float32
		for j := 0; j < totalNodes; j++ {
			sum += adj[i*totalNodes+j]
		}
		degree[i] = sum
	}
	for i := 0; i < totalNodes; i++ {
		di := float32(1.0 / math.Sqrt(float64(degree[i])))
		for j := 0; j < totalNodes; j++ {
			if adj[i*totalNodes+j] != 0 {
				dj := float32(1.0 / math.Sqrt(float64(degree[j])))
				adj[i*totalNodes+j] *= di * dj
			}
		}
	}

	adjT, err := tensor.NewTensor([]int{totalNodes, totalNodes}, tensor.Float32, adj)
	if err != nil {
		return nil, fmt.Errorf("failed to create adjacency tensor: %v", err)
	}

	nodeFeats, err := concatFeatures(graphs, totalNodes, func(g *Graph) *tensor.Tensor { return g.NodeFeats }, "node")
	if err != nil {
		return nil, err
	}
	edgeFeats, err := concatFeatures(graphs, totalEdges, func(g *Graph) *tensor.Tensor { return g.EdgeFeats }, "edge")
	if err != nil {
		return nil, err
	}

	return &Batch{
		NumNodes:  totalNodes,
		NumGraphs: len(graphs),
		Adj:       adjT,
		NodeFeats: nodeFeats,
		EdgeFeats: edgeFeats,
		Segments:  segments,
	}, nil
}

// concatFeatures stacks per-graph feature matrices into one tensor, or
// returns nil when no graph carries the feature.
func concatFeatures(graphs []*Graph, totalRows int, get func(*Graph) *tensor.Tensor, kind string) (*tensor.Tensor, error) {
	first := get(graphs[0])
	for i, g := range graphs {
		if (get(g) == nil) != (first == nil) {
			return nil, fmt.Errorf("graph %d disagrees with graph 0 on %s feature presence", i, kind)
		}
	}
	if first == nil {
		return nil, nil
	}

	width := first.Shape[1]
	data := make([]float32, 0, totalRows*width)
	for i, g := range graphs {
		f := get(g)
		if f.Shape[1] != width {
			return nil, fmt.Errorf("graph %d has %s feature width %d, expected %d", i, kind, f.Shape[1], width)
		}
		fd, err := f.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("graph %d %s features: %v", i, kind, err)
		}
		data = append(data, fd...)
	}

	return tensor.NewTensor([]int{totalRows, width}, tensor.Float32, data)
}
