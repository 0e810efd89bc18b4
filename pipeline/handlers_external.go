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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// This file implements the external node handlers: per-record HTTP
// enrichment and the query node's record-level expression evaluation.

// handleApiEnrich makes one HTTP call per record and merges a successful
// JSON response into the record under an "api_" prefix. Non-200 responses
// and network errors leave the record unenriched and append to the context
// error list, but never fail the pipeline.
func (e *Executor) handleApiEnrich(node *Node, ctx *Context) error {
	config := node.Config.(ApiEnrichConfig)
	in := e.upstreamValue(node, ctx)

	enrichOne := func(record Record) Record {
		response, err := e.callApi(config, record)
		if err != nil {
			ctx.AddError(node.Id, fmt.Sprintf("API enrichment error: %s", err), "record")
			return record
		}
		enriched := make(Record, len(record)+len(response))
		for name, value := range record {
			enriched[name] = value
		}
		for name, value := range response {
			enriched["api_"+name] = value
		}
		return enriched
	}

	if record, single := in.Record(); single {
		ctx.SetOutput(node.Id, SingleValue(enrichOne(record)))
		return nil
	}
	out := make([]Record, 0, len(in.Records()))
	for _, record := range in.Records() {
		out = append(out, enrichOne(record))
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

func (e *Executor) callApi(config ApiEnrichConfig, record Record) (map[string]any, error) {
	var request *http.Request
	var err error
	if config.Method == "GET" {
		request, err = http.NewRequest(http.MethodGet, config.URL, nil)
	} else {
		payload, marshalErr := json.Marshal(record)
		if marshalErr != nil {
			return nil, marshalErr
		}
		request, err = http.NewRequest(config.Method, config.URL, bytes.NewReader(payload))
		if request != nil {
			request.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, err
	}

	response, err := e.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", response.StatusCode, config.URL)
	}

	var decoded map[string]any
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// handleQuery evaluates the configured expression over each record. In
// transform mode the result is assigned to the alias field; in filter mode
// only records whose result is truthy are kept. Per-record evaluation
// failures are recorded and skipped.
func (e *Executor) handleQuery(node *Node, ctx *Context) error {
	config := node.Config.(QueryConfig)
	in := e.upstreamValue(node, ctx)

	if config.expr == nil {
		ctx.SetOutput(node.Id, in)
		return nil
	}

	records := in.Records()
	out := make([]Record, 0, len(records))
	for _, record := range records {
		result, err := config.expr.Eval(record)
		if err != nil {
			ctx.AddError(node.Id, fmt.Sprintf("Query evaluation error: %s", err), "record")
			if config.Mode == "transform" {
				out = append(out, record)
			}
			continue
		}
		if config.Mode == "filter" {
			if truthy(result) {
				out = append(out, record)
			}
			continue
		}
		assigned := make(Record, len(record)+1)
		for name, value := range record {
			assigned[name] = value
		}
		assigned[config.Alias] = result
		out = append(out, assigned)
	}

	if !in.IsList() && len(out) == 1 {
		ctx.SetOutput(node.Id, SingleValue(out[0]))
		return nil
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}
