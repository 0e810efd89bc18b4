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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// builds a pipeline description from terse node and edge specs
func describePipeline(nodes []string, edges []string) string {
	nodeJSON := make([]string, 0, len(nodes))
	for _, spec := range nodes {
		// each spec is "id:type" with an optional ":extra json" config tail
		parts := strings.SplitN(spec, ":", 3)
		data := `"label": "` + parts[0] + `"`
		if len(parts) == 3 && parts[2] != "" {
			data += ", " + parts[2]
		}
		nodeJSON = append(nodeJSON,
			fmt.Sprintf(`{"id": "%s", "type": "%s", "data": {%s}, "position": {"x": 0, "y": 0}}`,
				parts[0], parts[1], data))
	}
	edgeJSON := make([]string, 0, len(edges))
	for _, spec := range edges {
		parts := strings.SplitN(spec, "->", 2)
		edgeJSON = append(edgeJSON,
			fmt.Sprintf(`{"source": "%s", "target": "%s"}`, parts[0], parts[1]))
	}
	return fmt.Sprintf(`{"nodes": [%s], "edges": [%s]}`,
		strings.Join(nodeJSON, ","), strings.Join(edgeJSON, ","))
}

func mustParse(t *testing.T, nodes []string, edges []string) *Pipeline {
	p, err := Parse([]byte(describePipeline(nodes, edges)))
	require.Nil(t, err)
	return p
}

func TestParsePreservesNodeOrderAndLabels(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "f1:filter", "end1:end"},
		[]string{"start1->f1", "f1->end1"})
	assert.Len(p.Nodes, 3)
	assert.Equal([]string{"start1", "f1", "end1"}, p.order)
	assert.Equal("f1", p.Nodes["f1"].Label)
	assert.Equal(NodeFilter, p.Nodes["f1"].Type)
}

func TestValidateAcceptsMinimalPipeline(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "end1:end"},
		[]string{"start1->end1"})
	assert.Empty(p.Validate())
}

func TestValidateRejectsEmptyPipeline(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t, nil, nil)
	problems := p.Validate()
	require.Len(t, problems, 1)
	assert.Contains(problems[0], "no nodes")
}

func TestValidateRequiresExactlyOneStart(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t, []string{"end1:end"}, nil)
	assert.Contains(strings.Join(p.Validate(), "; "), "exactly one start")

	p = mustParse(t,
		[]string{"s1:start", "s2:start", "end1:end"},
		[]string{"s1->end1", "s2->end1"})
	assert.Contains(strings.Join(p.Validate(), "; "), "exactly one start")
}

func TestValidateRequiresEnd(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t, []string{"start1:start"}, nil)
	assert.Contains(strings.Join(p.Validate(), "; "), "end node")
}

func TestValidateRejectsUnknownType(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "x1:teleport", "end1:end"},
		[]string{"start1->x1", "x1->end1"})
	assert.Contains(strings.Join(p.Validate(), "; "), "Invalid node type 'teleport'")
}

func TestValidateRejectsUnknownEdgeEndpoints(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "end1:end"},
		[]string{"start1->ghost", "phantom->end1"})
	joined := strings.Join(p.Validate(), "; ")
	assert.Contains(joined, "unknown source node 'phantom'")
	assert.Contains(joined, "unknown target node 'ghost'")
}

func TestValidateAcceptsRouterChannels(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "r1:router", "end1:end"},
		[]string{"start1->r1", "r1_true->end1", "r1_false->end1"})
	assert.Empty(p.Validate())
}

func TestValidateDetectsCycle(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "X:filter", "Y:filter", "end1:end"},
		[]string{"start1->X", "X->Y", "Y->X", "Y->end1"})
	assert.Contains(strings.Join(p.Validate(), "; "), "circular")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", `t1:transform:"transformations": "[{\"field\": \"x\", \"expression\": \"1 +\"}]"`, "end1:end"},
		[]string{"start1->t1", "t1->end1"})
	assert.Contains(strings.Join(p.Validate(), "; "), "Invalid configuration for node 't1'")
}

func TestValidateRequiresJoinSources(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "j1:join", "end1:end"},
		[]string{"start1->j1", "j1->end1"})
	assert.Contains(strings.Join(p.Validate(), "; "), "left_source_id")
}

func TestExecutionOrderRespectsEdges(t *testing.T) {
	assert := assert.New(t)

	// a diamond with a tail
	p := mustParse(t,
		[]string{"start1:start", "a:filter", "b:sort", "c:union", "end1:end"},
		[]string{"start1->a", "start1->b", "a->c", "b->c", "c->end1"})
	order := p.ExecutionOrder()
	require.Len(t, order, 5)

	position := make(map[string]int)
	for i, id := range order {
		position[id] = i
	}
	for _, edge := range p.Edges {
		source, _ := p.resolveSource(edge.Source)
		assert.Less(position[source], position[edge.Target],
			"%s must run before %s", source, edge.Target)
	}
}

func TestExecutionOrderBreaksTiesByInsertion(t *testing.T) {
	assert := assert.New(t)

	p := mustParse(t,
		[]string{"start1:start", "b:sort", "a:filter", "end1:end"},
		[]string{"start1->end1", "b->end1", "a->end1"})
	order := p.ExecutionOrder()
	// all three roots are ready at once; they run in insertion order
	assert.Equal([]string{"start1", "b", "a", "end1"}, order)
}
