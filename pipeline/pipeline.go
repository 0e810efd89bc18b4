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

// This package executes user-defined DAGs of data-transformation nodes. A
// pipeline is parsed from its JSON description, validated (no cycles,
// reachable start/end, known node types), and walked sequentially in
// topological order by an Executor.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// the closed set of node types
type NodeType string

const (
	// structural
	NodeStart   NodeType = "start"
	NodeEnd     NodeType = "end"
	NodeTrigger NodeType = "trigger"
	// I/O
	NodeFolderSource NodeType = "folderSource"
	NodeOutput       NodeType = "output"
	NodeReadJson     NodeType = "readJson"
	NodeWriteJson    NodeType = "writeJson"
	NodeReadExcel    NodeType = "readExcel"
	NodeWriteExcel   NodeType = "writeExcel"
	// row shape
	NodeRemapper  NodeType = "remapper"
	NodeExtract   NodeType = "extract"
	NodeTransform NodeType = "transform"
	NodeFilter    NodeType = "filter"
	NodeRouter    NodeType = "router"
	NodeSort      NodeType = "sort"
	NodeDedupe    NodeType = "dedupe"
	NodeUnion     NodeType = "union"
	NodePivot     NodeType = "pivot"
	NodeUnpivot   NodeType = "unpivot"
	// join/aggregate
	NodeJoin        NodeType = "join"
	NodeAggregate   NodeType = "aggregate"
	NodeLookupTable NodeType = "lookupTable"
	// quality
	NodeValidate  NodeType = "validate"
	NodeProfile   NodeType = "profile"
	NodeImpute    NodeType = "impute"
	NodeNormalize NodeType = "normalize"
	NodeOutlier   NodeType = "outlier"
	// text/date
	NodeText NodeType = "text"
	NodeDate NodeType = "date"
	// external
	NodeApiEnrich NodeType = "apiEnrich"
	NodeQuery     NodeType = "query"
	// control
	NodeDelay NodeType = "delay"
	NodeCache NodeType = "cache"
)

var validNodeTypes = map[NodeType]bool{
	NodeStart: true, NodeEnd: true, NodeTrigger: true,
	NodeFolderSource: true, NodeOutput: true,
	NodeReadJson: true, NodeWriteJson: true, NodeReadExcel: true, NodeWriteExcel: true,
	NodeRemapper: true, NodeExtract: true, NodeTransform: true, NodeFilter: true,
	NodeRouter: true, NodeSort: true, NodeDedupe: true, NodeUnion: true,
	NodePivot: true, NodeUnpivot: true,
	NodeJoin: true, NodeAggregate: true, NodeLookupTable: true,
	NodeValidate: true, NodeProfile: true, NodeImpute: true,
	NodeNormalize: true, NodeOutlier: true,
	NodeText: true, NodeDate: true,
	NodeApiEnrich: true, NodeQuery: true,
	NodeDelay: true, NodeCache: true,
}

// A Node is one step of the pipeline. Its raw configuration is parsed into a
// typed config value exactly once, at load time.
type Node struct {
	Id    string
	Type  NodeType
	Label string
	// the parsed per-kind configuration (one of the *Config types)
	Config any
	// the raw data mapping from the pipeline description
	raw map[string]any
}

// An Edge expresses precedence and data flow from Source to Target. Edges
// carry no data.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// A Pipeline is an immutable description of a DAG of nodes.
type Pipeline struct {
	Nodes map[string]*Node
	Edges []Edge
	// node ids in insertion order, used to break topological ties
	order []string
}

// the JSON wire format (React Flow style; position and unknown keys are
// ignored)
type pipelineFile struct {
	Nodes []struct {
		Id   string         `json:"id"`
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	} `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Load reads and parses a pipeline description from a file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Couldn't read pipeline '%s': %s", path, err)
	}
	return Parse(data)
}

// Parse parses a pipeline description from JSON. Node configurations are
// parsed into their typed forms here; a config that doesn't parse is
// reported by Validate.
func Parse(data []byte) (*Pipeline, error) {
	var file pipelineFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("Couldn't parse pipeline description: %s", err)
	}

	p := &Pipeline{
		Nodes: make(map[string]*Node),
		Edges: file.Edges,
		order: make([]string, 0, len(file.Nodes)),
	}
	for _, n := range file.Nodes {
		node := &Node{
			Id:   n.Id,
			Type: NodeType(n.Type),
			raw:  n.Data,
		}
		if node.raw == nil {
			node.raw = make(map[string]any)
		}
		if label, ok := node.raw["label"].(string); ok {
			node.Label = label
		}
		if _, duplicate := p.Nodes[node.Id]; !duplicate {
			p.order = append(p.order, node.Id)
		}
		p.Nodes[node.Id] = node
	}
	return p, nil
}

// the synthetic output channels published by a router node
const (
	routerTrueSuffix  = "_true"
	routerFalseSuffix = "_false"
)

// resolveSource maps an edge source to the node that produces it: either the
// node itself, or the router behind a synthetic "<id>_true"/"<id>_false"
// channel. The second result is false when the source matches neither.
func (p *Pipeline) resolveSource(source string) (string, bool) {
	if _, found := p.Nodes[source]; found {
		return source, true
	}
	for _, suffix := range []string{routerTrueSuffix, routerFalseSuffix} {
		if base, hasSuffix := strings.CutSuffix(source, suffix); hasSuffix {
			if node, found := p.Nodes[base]; found && node.Type == NodeRouter {
				return base, true
			}
		}
	}
	return "", false
}

// upstreamSources lists the edge sources feeding the given node, in edge
// order.
func (p *Pipeline) upstreamSources(nodeId string) []string {
	sources := make([]string, 0)
	for _, edge := range p.Edges {
		if edge.Target == nodeId {
			sources = append(sources, edge.Source)
		}
	}
	return sources
}
