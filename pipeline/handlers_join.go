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
)

// This file implements the join, aggregate, and lookup-table handlers.

const (
	leftPrefix  = "LEFT_"
	rightPrefix = "RIGHT_"
)

func joinKeysMatch(left, right Record, keys []JoinKeyPair) bool {
	for _, key := range keys {
		if !looseEquals(left[key.Left], right[key.Right]) {
			return false
		}
	}
	return true
}

// combines both sides of a matched pair, optionally prefixing each side's
// columns
func combineRecords(left, right Record, prefix bool) Record {
	combined := make(Record, len(left)+len(right))
	for name, value := range left {
		if prefix {
			name = leftPrefix + name
		}
		combined[name] = value
	}
	for name, value := range right {
		if prefix {
			name = rightPrefix + name
		}
		combined[name] = value
	}
	return combined
}

// handleJoin performs an inner or left join over the two upstream nodes
// named explicitly in the configuration. Join keys combine with AND
// semantics; on left-join misses the right side's columns are emitted as
// nulls, using the first right record as the column template.
func (e *Executor) handleJoin(node *Node, ctx *Context) error {
	config := node.Config.(JoinConfig)

	leftValue, found := ctx.Output(config.LeftSource)
	if !found {
		return fmt.Errorf("Join input '%s' has produced no output", config.LeftSource)
	}
	rightValue, found := ctx.Output(config.RightSource)
	if !found {
		return fmt.Errorf("Join input '%s' has produced no output", config.RightSource)
	}
	leftRecords := leftValue.Records()
	rightRecords := rightValue.Records()

	joined := make([]Record, 0)
	for _, left := range leftRecords {
		matched := false
		for _, right := range rightRecords {
			if joinKeysMatch(left, right, config.Keys) {
				matched = true
				joined = append(joined, combineRecords(left, right, config.PrefixTables))
			}
		}
		if !matched && config.Type == "left" {
			miss := make(Record, len(left))
			for name, value := range left {
				if config.PrefixTables {
					name = leftPrefix + name
				}
				miss[name] = value
			}
			if len(rightRecords) > 0 {
				for name := range rightRecords[0] {
					if config.PrefixTables {
						name = rightPrefix + name
					}
					miss[name] = nil
				}
			}
			joined = append(joined, miss)
		}
	}
	ctx.SetOutput(node.Id, ListValue(joined))
	return nil
}

// handleAggregate groups records by zero or more fields and computes SUM,
// AVG, COUNT, MIN, or MAX per aggregation spec. Non-numeric values are
// skipped by the numeric aggregations; COUNT counts non-null values. Groups
// are emitted in first-seen order.
func (e *Executor) handleAggregate(node *Node, ctx *Context) error {
	config := node.Config.(AggregateConfig)
	in := e.upstreamValue(node, ctx)

	records := in.Records()
	if len(records) == 0 {
		ctx.SetOutput(node.Id, in)
		return nil
	}

	order := make([]string, 0)
	grouped := make(map[string][]Record)
	for _, record := range records {
		key := dedupeKey(record, config.GroupBy)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], record)
	}

	out := make([]Record, 0, len(order))
	for _, key := range order {
		group := grouped[key]
		result := make(Record)
		for _, field := range config.GroupBy {
			result[field] = group[0][field]
		}
		for _, spec := range config.Aggregations {
			function := strings.ToUpper(spec.Function)
			alias := spec.Alias
			if alias == "" {
				alias = fmt.Sprintf("%s_%s", function, spec.Field)
			}
			result[alias] = aggregateField(group, spec.Field, function)
		}
		out = append(out, result)
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

func aggregateField(group []Record, field, function string) any {
	values := make([]any, 0, len(group))
	for _, record := range group {
		if value, found := record[field]; found && value != nil {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil
	}

	if function == "COUNT" {
		return float64(len(values))
	}

	numbers := make([]float64, 0, len(values))
	for _, value := range values {
		// strings and other non-numeric values are skipped
		if number, ok := value.(float64); ok {
			numbers = append(numbers, number)
		} else if number, ok := value.(int); ok {
			numbers = append(numbers, float64(number))
		}
	}

	switch function {
	case "SUM":
		total := 0.0
		for _, number := range numbers {
			total += number
		}
		return total
	case "AVG":
		if len(numbers) == 0 {
			return 0.0
		}
		total := 0.0
		for _, number := range numbers {
			total += number
		}
		return total / float64(len(numbers))
	case "MIN":
		if len(numbers) == 0 {
			return nil
		}
		best := numbers[0]
		for _, number := range numbers[1:] {
			if number < best {
				best = number
			}
		}
		return best
	case "MAX":
		if len(numbers) == 0 {
			return nil
		}
		best := numbers[0]
		for _, number := range numbers[1:] {
			if number > best {
				best = number
			}
		}
		return best
	}
	return values[0]
}

// handleLookupTable enriches records from an in-line lookup table keyed by
// the configured join key. Matched rows contribute their columns under a
// "lookup_" prefix; misses contribute nulls using the first table row as the
// column template.
func (e *Executor) handleLookupTable(node *Node, ctx *Context) error {
	config := node.Config.(LookupConfig)
	in := e.upstreamValue(node, ctx)

	lookup := make(map[string]Record, len(config.Table))
	for _, row := range config.Table {
		if value, found := row[config.JoinKey]; found {
			lookup[toString(value)] = row
		}
	}

	enrichOne := func(record Record) Record {
		value, found := record[config.JoinKey]
		if !found {
			return record
		}
		enriched := make(Record, len(record))
		for name, recordValue := range record {
			enriched[name] = recordValue
		}
		if row, matched := lookup[toString(value)]; matched {
			for name, rowValue := range row {
				if name != config.JoinKey {
					enriched["lookup_"+name] = rowValue
				}
			}
		} else if len(config.Table) > 0 {
			for name := range config.Table[0] {
				if name != config.JoinKey {
					enriched["lookup_"+name] = nil
				}
			}
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
