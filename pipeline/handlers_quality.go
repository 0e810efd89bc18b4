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
	"math"
	"regexp"
	"sort"
	"time"
)

// This file implements the data-quality node handlers: rule validation,
// profiling, imputation, normalization, and outlier handling.

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// handleValidate checks each record against the configured rules. Rule
// violations are recorded on the context but never fail the node; the input
// passes through unchanged.
func (e *Executor) handleValidate(node *Node, ctx *Context) error {
	config := node.Config.(ValidateConfig)
	in := e.upstreamValue(node, ctx)

	for i, record := range in.Records() {
		for _, rule := range config.Rules {
			if message, violated := checkRule(record, rule); violated {
				ctx.AddError(node.Id, fmt.Sprintf("Record %d: %s", i, message), "record")
			}
		}
	}
	ctx.SetOutput(node.Id, in)
	return nil
}

func checkRule(record Record, rule ValidationRule) (string, bool) {
	message := rule.Message
	if message == "" {
		message = fmt.Sprintf("Validation failed for %s", rule.Field)
	}
	value := record[rule.Field]
	empty := value == nil || toString(value) == ""

	switch rule.Type {
	case "required":
		if empty {
			return message, true
		}
	case "email":
		if !empty && !emailPattern.MatchString(toString(value)) {
			return message, true
		}
	case "numeric":
		if !empty {
			if _, ok := toNumber(value); !ok {
				return message, true
			}
		}
	case "date":
		if !empty {
			if _, err := time.Parse(time.RFC3339, toString(value)); err != nil {
				if _, err := time.Parse("2006-01-02", toString(value)); err != nil {
					return message, true
				}
			}
		}
	case "pattern":
		if !empty && rule.pattern != nil && !rule.pattern.MatchString(toString(value)) {
			return message, true
		}
	case "range":
		if !empty {
			number, ok := toNumber(value)
			if !ok {
				return message, true
			}
			if rule.Min != nil && number < *rule.Min {
				return message, true
			}
			if rule.Max != nil && number > *rule.Max {
				return message, true
			}
		}
	}
	return "", false
}

// handleProfile publishes summary statistics about the input instead of the
// input itself.
func (e *Executor) handleProfile(node *Node, ctx *Context) error {
	in := e.upstreamValue(node, ctx)
	records := in.Records()

	fields := make(Record)
	for _, field := range columnSet(records) {
		values := make([]any, 0, len(records))
		for _, record := range records {
			values = append(values, record[field])
		}

		nonNull := make([]any, 0, len(values))
		unique := make(map[string]bool)
		numbers := make([]float64, 0, len(values))
		stringLengths := make([]int, 0)
		for _, value := range values {
			if value == nil || toString(value) == "" {
				continue
			}
			nonNull = append(nonNull, value)
			unique[toString(value)] = true
			if number, ok := toNumber(value); ok {
				numbers = append(numbers, number)
			} else {
				stringLengths = append(stringLengths, len(toString(value)))
			}
		}

		profile := Record{
			"total_count":    float64(len(values)),
			"non_null_count": float64(len(nonNull)),
			"null_count":     float64(len(values) - len(nonNull)),
			"unique_count":   float64(len(unique)),
		}
		if len(numbers) > 0 {
			mean, stdDev := meanAndStdDev(numbers)
			sorted := append([]float64(nil), numbers...)
			sort.Float64s(sorted)
			profile["type"] = "numeric"
			profile["min"] = sorted[0]
			profile["max"] = sorted[len(sorted)-1]
			profile["mean"] = mean
			profile["std_dev"] = stdDev
		} else if len(stringLengths) > 0 {
			minLength, maxLength, total := stringLengths[0], stringLengths[0], 0
			for _, length := range stringLengths {
				if length < minLength {
					minLength = length
				}
				if length > maxLength {
					maxLength = length
				}
				total += length
			}
			profile["type"] = "string"
			profile["min_length"] = float64(minLength)
			profile["max_length"] = float64(maxLength)
			profile["avg_length"] = float64(total) / float64(len(stringLengths))
		} else {
			profile["type"] = "other"
		}
		fields[field] = profile
	}

	ctx.SetOutput(node.Id, SingleValue(Record{
		"total_records": float64(len(records)),
		"fields":        fields,
	}))
	return nil
}

// handleImpute fills null or empty values of the configured fields with a
// fixed value or a statistic of the field across the input. A field absent
// from a record is not added.
func (e *Executor) handleImpute(node *Node, ctx *Context) error {
	config := node.Config.(ImputeConfig)
	in := e.upstreamValue(node, ctx)
	records := in.Records()

	// per-field statistics computed over the whole input
	statistics := make(map[string]any)
	if config.Method != "fixed" {
		for _, field := range config.Fields {
			statistics[field.Field] = imputeStatistic(records, field.Field, config.Method, field.Value)
		}
	}

	out := make([]Record, 0, len(records))
	for _, record := range records {
		filled := make(Record, len(record))
		for name, value := range record {
			filled[name] = value
		}
		for _, field := range config.Fields {
			current, present := filled[field.Field]
			if !present || current == nil || toString(current) == "" {
				if present {
					if config.Method == "fixed" {
						filled[field.Field] = field.Value
					} else {
						filled[field.Field] = statistics[field.Field]
					}
				}
			}
		}
		out = append(out, filled)
	}

	if !in.IsList() && len(out) == 1 {
		ctx.SetOutput(node.Id, SingleValue(out[0]))
		return nil
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

func imputeStatistic(records []Record, field, method string, fallback any) any {
	numbers := make([]float64, 0, len(records))
	counts := make(map[string]int)
	var modeValue any
	modeCount := 0
	for _, record := range records {
		value := record[field]
		if value == nil || toString(value) == "" {
			continue
		}
		if number, ok := toNumber(value); ok {
			numbers = append(numbers, number)
		}
		key := toString(value)
		counts[key]++
		if counts[key] > modeCount {
			modeCount = counts[key]
			modeValue = value
		}
	}

	switch method {
	case "mean":
		if len(numbers) == 0 {
			return fallback
		}
		mean, _ := meanAndStdDev(numbers)
		return mean
	case "median":
		if len(numbers) == 0 {
			return fallback
		}
		sort.Float64s(numbers)
		middle := len(numbers) / 2
		if len(numbers)%2 == 0 {
			return (numbers[middle-1] + numbers[middle]) / 2
		}
		return numbers[middle]
	case "mode":
		if modeValue == nil {
			return fallback
		}
		return modeValue
	}
	return fallback
}

// handleNormalize rescales numeric fields with min-max or z-score
// normalization. Degenerate ranges (max == min, zero standard deviation) map
// to the identity.
func (e *Executor) handleNormalize(node *Node, ctx *Context) error {
	config := node.Config.(NormalizeConfig)
	in := e.upstreamValue(node, ctx)
	records := in.Records()
	if len(records) == 0 {
		ctx.SetOutput(node.Id, in)
		return nil
	}

	type fieldStats struct {
		min, max, mean, stdDev float64
		present                bool
	}
	statistics := make(map[string]fieldStats)
	for _, field := range config.Fields {
		numbers := numericColumn(records, field)
		if len(numbers) == 0 {
			continue
		}
		stats := fieldStats{present: true, min: numbers[0], max: numbers[0]}
		for _, number := range numbers {
			if number < stats.min {
				stats.min = number
			}
			if number > stats.max {
				stats.max = number
			}
		}
		stats.mean, stats.stdDev = meanAndStdDev(numbers)
		statistics[field] = stats
	}

	out := make([]Record, 0, len(records))
	for _, record := range records {
		normalized := make(Record, len(record))
		for name, value := range record {
			normalized[name] = value
		}
		for _, field := range config.Fields {
			stats, found := statistics[field]
			if !found {
				continue
			}
			number, ok := recordNumber(record, field)
			if !ok {
				continue
			}
			switch config.Method {
			case "zscore":
				if stats.stdDev != 0 {
					normalized[field] = (number - stats.mean) / stats.stdDev
				}
			default: // minmax
				if stats.max != stats.min {
					normalized[field] = (number - stats.min) / (stats.max - stats.min)
				}
			}
		}
		out = append(out, normalized)
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

// handleOutlier detects outliers per field with the IQR or z-score method
// and flags, removes, or caps the affected records. Detection requires at
// least four values.
func (e *Executor) handleOutlier(node *Node, ctx *Context) error {
	config := node.Config.(OutlierConfig)
	in := e.upstreamValue(node, ctx)
	records := in.Records()

	type bounds struct {
		lower, upper float64
		usable       bool
	}
	outliers := make(map[string]map[int]bool)
	limits := make(map[string]bounds)
	for _, field := range config.Fields {
		positions := make([]int, 0, len(records))
		numbers := make([]float64, 0, len(records))
		for i, record := range records {
			if number, ok := recordNumber(record, field); ok {
				positions = append(positions, i)
				numbers = append(numbers, number)
			}
		}
		if len(numbers) < 4 {
			continue
		}

		flagged := make(map[int]bool)
		switch config.Method {
		case "zscore":
			mean, stdDev := meanAndStdDev(numbers)
			if stdDev == 0 {
				break
			}
			limits[field] = bounds{lower: mean - 3*stdDev, upper: mean + 3*stdDev, usable: true}
			for i, number := range numbers {
				if math.Abs(number-mean)/stdDev > 3 {
					flagged[positions[i]] = true
				}
			}
		default: // iqr
			sorted := append([]float64(nil), numbers...)
			sort.Float64s(sorted)
			q1 := sorted[len(sorted)/4]
			q3 := sorted[3*len(sorted)/4]
			iqr := q3 - q1
			limit := bounds{lower: q1 - 1.5*iqr, upper: q3 + 1.5*iqr, usable: true}
			limits[field] = limit
			for i, number := range numbers {
				if number < limit.lower || number > limit.upper {
					flagged[positions[i]] = true
				}
			}
		}
		outliers[field] = flagged
	}

	isOutlier := func(i int) bool {
		for _, flagged := range outliers {
			if flagged[i] {
				return true
			}
		}
		return false
	}

	out := make([]Record, 0, len(records))
	for i, record := range records {
		switch config.Action {
		case "remove":
			if !isOutlier(i) {
				out = append(out, record)
			}
		case "cap":
			capped := make(Record, len(record))
			for name, value := range record {
				capped[name] = value
			}
			for field, flagged := range outliers {
				limit := limits[field]
				if !flagged[i] || !limit.usable {
					continue
				}
				if number, ok := recordNumber(capped, field); ok {
					capped[field] = math.Max(limit.lower, math.Min(limit.upper, number))
				}
			}
			out = append(out, capped)
		default: // flag
			flagged := make(Record, len(record)+1)
			for name, value := range record {
				flagged[name] = value
			}
			flagged["_is_outlier"] = isOutlier(i)
			out = append(out, flagged)
		}
	}
	ctx.SetOutput(node.Id, ListValue(out))
	return nil
}

//------------------
// Numeric helpers
//------------------

// recordNumber extracts a numeric field value without coercing strings
func recordNumber(record Record, field string) (float64, bool) {
	switch v := record[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func numericColumn(records []Record, field string) []float64 {
	numbers := make([]float64, 0, len(records))
	for _, record := range records {
		if number, ok := recordNumber(record, field); ok {
			numbers = append(numbers, number)
		}
	}
	return numbers
}

func meanAndStdDev(numbers []float64) (float64, float64) {
	if len(numbers) == 0 {
		return 0, 0
	}
	total := 0.0
	for _, number := range numbers {
		total += number
	}
	mean := total / float64(len(numbers))
	variance := 0.0
	for _, number := range numbers {
		variance += (number - mean) * (number - mean)
	}
	variance /= float64(len(numbers))
	return mean, math.Sqrt(variance)
}
