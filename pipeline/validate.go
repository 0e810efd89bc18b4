// Copyright (c) 2024 The Batchline Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package pipeline

import (
	"fmt"
)

// Validate checks the pipeline's structure and configuration. All reported
// problems are fatal for the run; no node executes when any are present.
func (p *Pipeline) Validate() []string {
	problems := make([]string, 0)

	if len(p.Nodes) == 0 {
		problems = append(problems, "Pipeline contains no nodes")
		return problems
	}

	startCount, endCount := 0, 0
	for _, id := range p.order {
		node := p.Nodes[id]
		switch node.Type {
		case NodeStart:
			startCount++
		case NodeEnd:
			endCount++
		}
		if !validNodeTypes[node.Type] {
			problems = append(problems,
				fmt.Sprintf("Invalid node type '%s' for node '%s'", node.Type, id))
		}
	}
	if startCount != 1 {
		problems = append(problems,
			fmt.Sprintf("Pipeline must contain exactly one start node (found %d)", startCount))
	}
	if endCount == 0 {
		problems = append(problems, "Pipeline must contain an end node")
	}

	for _, edge := range p.Edges {
		if _, found := p.resolveSource(edge.Source); !found {
			problems = append(problems,
				fmt.Sprintf("Edge from unknown source node '%s'", edge.Source))
		}
		if _, found := p.Nodes[edge.Target]; !found {
			problems = append(problems,
				fmt.Sprintf("Edge to unknown target node '%s'", edge.Target))
		}
	}

	if len(p.ExecutionOrder()) != len(p.Nodes) {
		problems = append(problems, "Pipeline contains circular dependencies")
	}

	problems = append(problems, p.parseConfigs()...)
	return problems
}

// ExecutionOrder computes a topological order over the nodes with Kahn's
// algorithm. Ties are broken in node insertion order; a cycle yields an
// order shorter than the node count.
func (p *Pipeline) ExecutionOrder() []string {
	inDegree := make(map[string]int, len(p.Nodes))
	for id := range p.Nodes {
		inDegree[id] = 0
	}
	for _, edge := range p.Edges {
		if _, found := p.Nodes[edge.Target]; found {
			// synthetic router channels count as their router
			if _, sourceKnown := p.resolveSource(edge.Source); sourceKnown {
				inDegree[edge.Target]++
			}
		}
	}

	queue := make([]string, 0, len(p.Nodes))
	for _, id := range p.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(p.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range p.Edges {
			source, sourceKnown := p.resolveSource(edge.Source)
			if !sourceKnown || source != id {
				continue
			}
			if _, found := p.Nodes[edge.Target]; !found {
				continue
			}
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}
	return order
}
