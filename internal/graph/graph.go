// Package graph orders pipeline nodes for compilation and propagates
// file artifacts across the graph.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/kfpc/pkg/pipeline"
)

// Sort returns the pipeline's nodes in topological order using Kahn's
// algorithm. Ties are broken lexicographically by node ID so the order is
// deterministic for a fixed graph, which in turn makes task naming and
// cross-references byte-stable across compilation runs.
//
// The upstream validator guarantees an acyclic graph; a cycle is still
// reported as an error (naming the nodes involved) rather than looping.
func Sort(p *pipeline.Pipeline) ([]*pipeline.Node, error) {
	// forward[A] = [B, C] means A must complete before B and C.
	forward := make(map[string][]string, len(p.Nodes))
	inDegree := make(map[string]int, len(p.Nodes))

	for id := range p.Nodes {
		inDegree[id] = 0
	}
	for id, node := range p.Nodes {
		seen := make(map[string]bool)
		for _, parent := range node.ParentIDs {
			if parent == id {
				return nil, fmt.Errorf("pipeline contains a cycle involving node: %s", id)
			}
			if _, exists := p.Nodes[parent]; !exists || seen[parent] {
				continue
			}
			seen[parent] = true
			forward[parent] = append(forward[parent], id)
			inDegree[id]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]*pipeline.Node, 0, len(p.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, p.Nodes[id])

		successors := forward[id]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(p.Nodes) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return nil, fmt.Errorf("pipeline contains a cycle involving nodes: %s",
			strings.Join(cycleNodes, ", "))
	}

	return order, nil
}

// Propagate extends each node's inputs with the artifacts visible at its
// position in the graph: every parent's effective inputs and outputs,
// followed by the node's own declared inputs. Because parents are processed
// first, inputs accumulate transitively and a grandchild can consume a
// grandparent's artifact without the intermediate node redeclaring it.
// Outputs are never inherited.
//
// The node list must be in topological order (see Sort); nodes are mutated
// in place.
func Propagate(p *pipeline.Pipeline, ordered []*pipeline.Node) {
	for _, node := range ordered {
		var parentIO []string
		for _, parentID := range node.ParentIDs {
			parent, exists := p.Nodes[parentID]
			if !exists {
				continue
			}
			parentIO = append(parentIO, parent.Inputs...)
			parentIO = append(parentIO, parent.Outputs...)
		}
		if len(parentIO) == 0 {
			continue
		}
		parentIO = append(parentIO, node.Inputs...)
		node.Inputs = dedupe(parentIO)
	}
}

// dedupe removes duplicate entries, keeping first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
