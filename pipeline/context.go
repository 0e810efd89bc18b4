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
	"sync/atomic"
	"time"
)

// A Record is one row of tabular data: a mapping from field name to value.
type Record = map[string]any

// A Value is what a node publishes to the node output map: a single record,
// a sequence of records, or raw text.
type Value struct {
	kind    valueKind
	record  Record
	records []Record
	text    string
}

type valueKind int

const (
	emptyValue valueKind = iota
	recordValue
	recordsValue
	textValue
)

func SingleValue(record Record) Value {
	return Value{kind: recordValue, record: record}
}

func ListValue(records []Record) Value {
	return Value{kind: recordsValue, records: records}
}

func TextValue(text string) Value {
	return Value{kind: textValue, text: text}
}

func (v Value) IsEmpty() bool {
	return v.kind == emptyValue
}

func (v Value) IsList() bool {
	return v.kind == recordsValue
}

// Records coerces the value to a record sequence: a single record becomes a
// one-element sequence, text and empty values become an empty one.
func (v Value) Records() []Record {
	switch v.kind {
	case recordsValue:
		return v.records
	case recordValue:
		return []Record{v.record}
	default:
		return []Record{}
	}
}

// Record returns the single record held by the value, if any.
func (v Value) Record() (Record, bool) {
	if v.kind == recordValue {
		return v.record, true
	}
	return nil, false
}

func (v Value) Text() string {
	return v.text
}

// a structured error recorded during a run
type NodeError struct {
	NodeId    string
	Message   string
	Kind      string // "record" or "critical"
	Timestamp time.Time
}

// pipeline-level measurements populated when a run finishes
type Metrics struct {
	TotalDuration time.Duration
	NodeCount     int
	ErrorCount    int
}

// A Context carries the state of one pipeline run: the node output map,
// structured errors, per-node timings and attempt counts, run metrics, and
// the cancellation flag. It is created per run, owned by the executor, and
// mutated only by the currently running handler.
type Context struct {
	// input and output files named on the command line
	InputFile, OutputFile string
	// data visible to nodes with no upstream edge (empty at run start)
	CurrentData string
	// structured errors accumulated during the run
	Errors []NodeError
	// wall-clock duration of each executed node
	ExecutionTimes map[string]time.Duration
	// number of invocations of each node, retries included
	Attempts map[string]int
	// populated after the executor loop finishes
	Metrics Metrics

	outputs  map[string]Value
	canceled atomic.Bool
}

func NewContext(inputFile, outputFile string) *Context {
	return &Context{
		InputFile:      inputFile,
		OutputFile:     outputFile,
		Errors:         make([]NodeError, 0),
		ExecutionTimes: make(map[string]time.Duration),
		Attempts:       make(map[string]int),
		outputs:        make(map[string]Value),
	}
}

// AddError records a structured error against the given node.
func (c *Context) AddError(nodeId, message, kind string) {
	c.Errors = append(c.Errors, NodeError{
		NodeId:    nodeId,
		Message:   message,
		Kind:      kind,
		Timestamp: time.Now(),
	})
}

// SetOutput publishes a node's output.
func (c *Context) SetOutput(nodeId string, value Value) {
	c.outputs[nodeId] = value
}

// Output retrieves a node's published output.
func (c *Context) Output(nodeId string) (Value, bool) {
	value, found := c.outputs[nodeId]
	return value, found
}

// Cancel requests that the run stop after the currently executing node.
func (c *Context) Cancel() {
	c.canceled.Store(true)
}

func (c *Context) Canceled() bool {
	return c.canceled.Load()
}

func (c *Context) incrementAttempts(nodeId string) {
	c.Attempts[nodeId]++
}
