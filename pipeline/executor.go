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
	"log/slog"
	"net/http"
	"time"

	"github.com/batchline/batchline/remotefs"
	"github.com/batchline/batchline/retry"
)

// retry policy for the I/O-bearing endpoint nodes (folderSource and output);
// all other handlers run once over in-memory data
const (
	ioMaxAttempts     = 4 // 1 + 3 retries
	ioRetryMultiplier = 2
)

// a fatal validation failure reported before any node executes
type ValidationError struct {
	Problems []string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("Pipeline validation failed: %s", e.Problems[0])
}

// a fatal node failure that stopped the run
type NodeFailureError struct {
	NodeId  string
	Message string
}

func (e NodeFailureError) Error() string {
	return fmt.Sprintf("Node '%s' failed: %s", e.NodeId, e.Message)
}

// Everything an Executor needs is handed to it here; there is no
// package-level state.
type ExecutorConfig struct {
	// remote file system factory (remotefs.New when nil)
	FileSystemFactory func(protocol string, params remotefs.Params) (remotefs.FileSystem, error)
	// client used by the apiEnrich node (http.DefaultClient when nil)
	HTTPClient *http.Client
	// initial delay for I/O retries (1s when zero; tests shorten it)
	RetryInitialDelay time.Duration
	// sleep used by the delay node (time.Sleep when nil); retry backoffs
	// wait on their own timers
	Sleep func(time.Duration)
}

// This type executes a pipeline: it validates the DAG, computes the
// topological order, and runs each node in that order with per-node timing
// and retry on the I/O-bearing endpoints.
type Executor struct {
	pipeline   *Pipeline
	newFS      func(protocol string, params remotefs.Params) (remotefs.FileSystem, error)
	httpClient *http.Client
	retryDelay time.Duration
	sleep      func(time.Duration)
}

func NewExecutor(p *Pipeline, cfg ExecutorConfig) *Executor {
	newFS := cfg.FileSystemFactory
	if newFS == nil {
		newFS = remotefs.New
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	retryDelay := cfg.RetryInitialDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Executor{
		pipeline:   p,
		newFS:      newFS,
		httpClient: httpClient,
		retryDelay: retryDelay,
		sleep:      sleep,
	}
}

// Execute runs the pipeline over the given input and output files. The
// returned context always carries whatever errors, timings, and metrics were
// accumulated; the error is non-nil when validation fails, a node fails, or
// the run is canceled. Per-record handler errors accumulate on the context
// without failing the run.
func (e *Executor) Execute(inputFile, outputFile string) (*Context, error) {
	ctx := NewContext(inputFile, outputFile)
	return ctx, e.ExecuteContext(ctx)
}

// ExecuteContext runs the pipeline with a caller-supplied context, which
// allows cancellation from another goroutine.
func (e *Executor) ExecuteContext(ctx *Context) error {
	if problems := e.pipeline.Validate(); len(problems) > 0 {
		for _, problem := range problems {
			slog.Error(fmt.Sprintf("Pipeline validation: %s", problem))
			ctx.AddError("validation", problem, "critical")
		}
		return ValidationError{Problems: problems}
	}

	started := time.Now()
	order := e.pipeline.ExecutionOrder()
	slog.Debug(fmt.Sprintf("Execution order: %v", order))

	var failure error
	for _, nodeId := range order {
		if ctx.Canceled() {
			slog.Warn("Pipeline execution canceled")
			ctx.AddError(nodeId, "Pipeline execution canceled", "critical")
			failure = fmt.Errorf("pipeline execution canceled")
			break
		}

		node := e.pipeline.Nodes[nodeId]
		nodeStarted := time.Now()
		err := e.executeNode(node, ctx)
		ctx.ExecutionTimes[nodeId] = time.Since(nodeStarted)
		slog.Debug(fmt.Sprintf("Node %s executed in %s", nodeId, ctx.ExecutionTimes[nodeId]))

		if err != nil {
			slog.Error(fmt.Sprintf("Node %s failed: %s", nodeId, err))
			ctx.AddError(nodeId, err.Error(), "critical")
			failure = NodeFailureError{NodeId: nodeId, Message: err.Error()}
			break
		}
	}

	ctx.Metrics = Metrics{
		TotalDuration: time.Since(started),
		NodeCount:     len(order),
		ErrorCount:    len(ctx.Errors),
	}
	return failure
}

// executeNode dispatches on the node's kind. The I/O-bearing endpoints are
// wrapped in the retry policy; everything else runs once.
func (e *Executor) executeNode(node *Node, ctx *Context) error {
	run := func() error {
		ctx.incrementAttempts(node.Id)
		return e.runHandler(node, ctx)
	}
	if node.Type == NodeFolderSource || node.Type == NodeOutput {
		return retry.Do(run, ioMaxAttempts, e.retryDelay, ioRetryMultiplier)
	}
	return run()
}

func (e *Executor) runHandler(node *Node, ctx *Context) error {
	switch node.Type {
	case NodeStart:
		return e.handleStart(node, ctx)
	case NodeEnd:
		return e.handleEnd(node, ctx)
	case NodeTrigger:
		return e.handleTrigger(node, ctx)
	case NodeFolderSource:
		return e.handleFolderSource(node, ctx)
	case NodeOutput:
		return e.handleOutput(node, ctx)
	case NodeReadJson:
		return e.handleReadJson(node, ctx)
	case NodeWriteJson:
		return e.handleWriteJson(node, ctx)
	case NodeReadExcel:
		return e.handleReadExcel(node, ctx)
	case NodeWriteExcel:
		return e.handleWriteExcel(node, ctx)
	case NodeRemapper, NodeExtract:
		return e.handleRemap(node, ctx)
	case NodeTransform:
		return e.handleTransform(node, ctx)
	case NodeFilter:
		return e.handleFilter(node, ctx)
	case NodeRouter:
		return e.handleRouter(node, ctx)
	case NodeSort:
		return e.handleSort(node, ctx)
	case NodeDedupe:
		return e.handleDedupe(node, ctx)
	case NodeUnion:
		return e.handleUnion(node, ctx)
	case NodePivot:
		return e.handlePivot(node, ctx)
	case NodeUnpivot:
		return e.handleUnpivot(node, ctx)
	case NodeJoin:
		return e.handleJoin(node, ctx)
	case NodeAggregate:
		return e.handleAggregate(node, ctx)
	case NodeLookupTable:
		return e.handleLookupTable(node, ctx)
	case NodeValidate:
		return e.handleValidate(node, ctx)
	case NodeProfile:
		return e.handleProfile(node, ctx)
	case NodeImpute:
		return e.handleImpute(node, ctx)
	case NodeNormalize:
		return e.handleNormalize(node, ctx)
	case NodeOutlier:
		return e.handleOutlier(node, ctx)
	case NodeText:
		return e.handleText(node, ctx)
	case NodeDate:
		return e.handleDate(node, ctx)
	case NodeApiEnrich:
		return e.handleApiEnrich(node, ctx)
	case NodeQuery:
		return e.handleQuery(node, ctx)
	case NodeDelay:
		return e.handleDelay(node, ctx)
	case NodeCache:
		return e.handleCache(node, ctx)
	}
	return fmt.Errorf("Unknown node type: %s", node.Type)
}

// upstreamValue finds the node's input: the output of the first incoming
// edge whose source has published, falling back to the context's current
// data (empty at run start).
func (e *Executor) upstreamValue(node *Node, ctx *Context) Value {
	for _, source := range e.pipeline.upstreamSources(node.Id) {
		if value, found := ctx.Output(source); found {
			return value
		}
	}
	if ctx.CurrentData != "" {
		return TextValue(ctx.CurrentData)
	}
	return Value{}
}
