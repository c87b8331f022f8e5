// Package graph provides the graph data model for graph-classification
// training: individual graphs with optional node/edge features and edge
// weights, and disjoint-union batching with a symmetric-normalized
// adjacency suitable for graph convolutions.
package graph

import (
	"fmt"

	"github.com/lanternml/graphcl/tensor"
)

// Graph is a single undirected graph in COO edge form. Every edge should
// appear once; batching mirrors it in both directions. NodeFeats
// ([NumNodes, F]), EdgeFeats ([NumEdges, Fe]) and EdgeWeights
// (len NumEdges) are optional.
type Graph struct {
	NumNodes    int
	Src         []int32
	Dst         []int32
	NodeFeats   *tensor.Tensor
	EdgeFeats   *tensor.Tensor
	EdgeWeights []float32
}

// Validate checks the structural consistency of the graph.
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("graph must have at least one node, got %d", g.NumNodes)
	}
	if len(g.Src) != len(g.Dst) {
		return fmt.Errorf("edge list mismatch: %d sources, %d destinations", len(g.Src), len(g.Dst))
	}
	for i := range g.Src {
		if g.Src[i] < 0 || int(g.Src[i]) >= g.NumNodes || g.Dst[i] < 0 || int(g.Dst[i]) >= g.NumNodes {
			return fmt.Errorf("edge %d (%d -> %d) references a node outside [0, %d)", i, g.Src[i], g.Dst[i], g.NumNodes)
		}
	}
	if g.EdgeWeights != nil && len(g.EdgeWeights) != len(g.Src) {
		return fmt.Errorf("edge weight count %d does not match edge count %d", len(g.EdgeWeights), len(g.Src))
	}
	if g.NodeFeats != nil {
		if len(g.NodeFeats.Shape) != 2 || g.NodeFeats.Shape[0] != g.NumNodes {
			return fmt.Errorf("node features must be [%d, F], got shape %v", g.NumNodes, g.NodeFeats.Shape)
		}
	}
	if g.EdgeFeats != nil {
		if len(g.EdgeFeats.Shape) != 2 || g.EdgeFeats.Shape[0] != len(g.Src) {
			return fmt.Errorf("edge features must be [%d, F], got shape %v", len(g.Src), g.EdgeFeats.Shape)
		}
	}
	return nil
}

// NumEdges returns the number of stored (undirected) edges.
func (g *Graph) NumEdges() int {
	return len(g.Src)
}
