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
	"sort"
	"strings"
)

// This file implements the row-shape node handlers: field remapping,
// per-record expressions, predicates, sorting, deduplication, union, and
// pivoting.

//------------
// Predicates
//------------

// matchRecord evaluates a condition list over one record. AND requires every
// condition to match (non-matches short-circuit); OR requires at least one
// (matches short-circuit). An empty condition list matches everything.
func matchRecord(record Record, conditions []Condition, logic string) bool {
	if len(conditions) == 0 {
		return true
	}
	for _, condition := range conditions {
		match := matchCondition(record, condition)
		if logic == "AND" && !match {
			return false
		}
		if logic == "OR" && match {
			return true
		}
	}
	return logic == "AND"
}

func matchCondition(record Record, condition Condition) bool {
	value := record[condition.Field]
	switch condition.Operator {
	case "equals":
		return looseEquals(value, condition.Value)
	case "not_equals":
		return !looseEquals(value, condition.Value)
	case "greater":
		return compareValues(value, condition.Value) > 0
	case "less":
		return compareValues(value, condition.Value) < 0
	case "contains":
		return strings.Contains(toString(value), toString(condition.Value))
	case "is_null":
		return value == nil || toString(value) == ""
	case "is_not_null":
		return value != nil && toString(value) != ""
	}
	return false
}

func (e *Executor) handleFilter(node *Node, ctx *Context) error {
	config := node.Config.(PredicateConfig)
	in := e.upstreamValue(node, ctx)

	if record, single := in.Record(); single {
		if matchRecord(record, config.Conditions, config.Logic) {
			ctx.SetOutput(node.Id, SingleValue(record))
		} else {
			ctx.SetOutput(node.Id, ListValue([]Record{}))
		}
		return nil
	}

	kept := make([]Record, 0)
	for _, record := range in.Records() {
		if matchRecord(record, config.Conditions, config.Logic) {
			kept = append(kept, record)
		}
	}
	ctx.SetOutput(node.Id, ListValue(kept))
	return nil
}

func (e *Executor) handleRouter(node *Node, ctx *Context) error {
	config := node.Config.(PredicateConfig)
	in := e.upstreamValue(node, ctx)

	// a single record goes only to the channel it matches
	if record, single := in.Record(); single {
		if matchRecord(record, config.Conditions, config.Logic) {
			ctx.SetOutput(node.Id+routerTrueSuffix, SingleValue(record))
		} else {
			ctx.SetOutput(node.Id+routerFalseSuffix, SingleValue(record))
		}
		return nil
	}

	trueBranch := make([]Record, 0)
	falseBranch := make([]Record, 0)
	for _, record := range in.Records() {
		if matchRecord(record, config.Conditions, config.Logic) {
			trueBranch = append(trueBranch, record)
		} else {
			falseBranch = append(falseBranch, record)
		}
	}
	ctx.SetOutput(node.Id+routerTrueSuffix, ListValue(trueBranch))
	ctx.SetOutput(node.Id+routerFalseSuffix, ListValue(falseBranch))
	return nil
}

//-----------
// Remapping
//-----------

// applies a field mapping's value transform
func applyMappingTransform(transform string, value any) any {
	switch transform {
	case "upper":
		return strings.ToUpper(toString(value))
	case "lower":
		return strings.ToLower(toString(value))
	case "title":
		return titleCase(toString(value))
	case "trim":
		return strings.TrimSpace(toString(value))
	case "number":
		if number, ok := toNumber(value); ok {
			return number
		}
		return value // failed conversions pass the original through
	}
	return value
}

// titleCase uppercases the first letter of each space-separated word
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func remapRecord(record Record, config RemapConfig) Record {
	mapped := make(Record)
	for _, mapping := range config.Mappings {
		value, found := record[mapping.Source]
		if !found {
			continue
		}
		mapped[mapping.Target] = applyMappingTransform(mapping.Transform, value)
	}
	if !config.DropOthers {
		mappedSources := make(map[string]bool, len(config.Mappings))
		for _, mapping := range config.Mappings {
			mappedSources[mapping.Source] = true
		}
		for name, value := range record {
			if !mappedSources[name] {
				mapped[name] = value
			}
		}
	}
	return mapped
}

// handleRemap serves both the remapper and extract nodes; extract is a
// remap that always drops unmapped fields.
func (e *Executor) handleRemap(node *Node, ctx *Context) error {
	config := node.Config.(RemapConfig)
	in := e.upstreamValue(node, ctx)

	if record, single := in.Record(); single {
		ctx.SetOutput(node.Id, SingleValue(remapRecord(record, config)))
		return nil
	}

	out := make([]Record, 0, len(in.Records()))
	for _, record := range in.Records() {
		out = append(out, remapRecord(record, config))
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

//-------------
// Expressions
//-------------

func (e *Executor) handleTransform(node *Node, ctx *Context) error {
	config := node.Config.(TransformConfig)
	in := e.upstreamValue(node, ctx)

	transformOne := func(record Record) Record {
		out := make(Record, len(record))
		for name, value := range record {
			out[name] = value
		}
		for _, rule := range config.Rules {
			result, err := rule.expr.Eval(record)
			if err != nil {
				// a bad expression skips this assignment, not the pipeline
				ctx.AddError(node.Id, fmt.Sprintf("Transform error: %s", err), "record")
				continue
			}
			target := rule.Alias
			if target == "" {
				target = rule.Field
			}
			out[target] = result
		}
		return out
	}

	if record, single := in.Record(); single {
		ctx.SetOutput(node.Id, SingleValue(transformOne(record)))
		return nil
	}
	out := make([]Record, 0, len(in.Records()))
	for _, record := range in.Records() {
		out = append(out, transformOne(record))
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

//---------
// Sorting
//---------

func (e *Executor) handleSort(node *Node, ctx *Context) error {
	config := node.Config.(SortConfig)
	in := e.upstreamValue(node, ctx)

	if !in.IsList() {
		ctx.SetOutput(node.Id, in)
		return nil
	}

	records := make([]Record, len(in.Records()))
	copy(records, in.Records())
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range config.Keys {
			ordering := compareValues(records[i][key.Field], records[j][key.Field])
			if strings.EqualFold(key.Direction, "desc") {
				ordering = -ordering
			}
			if ordering != 0 {
				return ordering < 0
			}
		}
		return false
	})
	ctx.SetOutput(node.Id, ListValue(records))
	return nil
}

//---------------
// Deduplication
//---------------

// dedupeKey concatenates the key fields' values with '|'
func dedupeKey(record Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = toString(record[field])
	}
	return strings.Join(parts, "|")
}

func (e *Executor) handleDedupe(node *Node, ctx *Context) error {
	config := node.Config.(DedupeConfig)
	in := e.upstreamValue(node, ctx)

	if !in.IsList() {
		ctx.SetOutput(node.Id, in)
		return nil
	}

	seen := make(map[string]int)
	out := make([]Record, 0)
	for _, record := range in.Records() {
		key := dedupeKey(record, config.Fields)
		if position, duplicate := seen[key]; duplicate {
			if config.Keep == "last" {
				out[position] = record
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, record)
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

//-------
// Union
//-------

// handleUnion concatenates the outputs of every upstream edge, in edge
// order. The legacy "sources" config key is ignored.
func (e *Executor) handleUnion(node *Node, ctx *Context) error {
	out := make([]Record, 0)
	for _, source := range e.pipeline.upstreamSources(node.Id) {
		value, found := ctx.Output(source)
		if !found {
			continue
		}
		out = append(out, value.Records()...)
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

//----------
// Pivoting
//----------

func (e *Executor) handlePivot(node *Node, ctx *Context) error {
	config := node.Config.(PivotConfig)
	in := e.upstreamValue(node, ctx)

	// group by the index field in first-seen order
	order := make([]string, 0)
	grouped := make(map[string]Record)
	for _, record := range in.Records() {
		key := toString(record[config.IndexField])
		pivoted, exists := grouped[key]
		if !exists {
			pivoted = Record{config.IndexField: record[config.IndexField]}
			grouped[key] = pivoted
			order = append(order, key)
		}
		column := toString(record[config.NameField])
		if column != "" {
			pivoted[column] = record[config.ValueField]
		}
	}

	out := make([]Record, 0, len(order))
	for _, key := range order {
		out = append(out, grouped[key])
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

func (e *Executor) handleUnpivot(node *Node, ctx *Context) error {
	config := node.Config.(UnpivotConfig)
	in := e.upstreamValue(node, ctx)

	kept := make(map[string]bool, len(config.KeepFields))
	for _, field := range config.KeepFields {
		kept[field] = true
	}

	out := make([]Record, 0)
	for _, record := range in.Records() {
		// melt the remaining columns in sorted order for determinism
		melted := make([]string, 0, len(record))
		for name := range record {
			if !kept[name] {
				melted = append(melted, name)
			}
		}
		sort.Strings(melted)
		for _, name := range melted {
			row := make(Record, len(config.KeepFields)+2)
			for _, keep := range config.KeepFields {
				row[keep] = record[keep]
			}
			row[config.NameField] = name
			row[config.ValueField] = record[name]
			out = append(out, row)
		}
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}
